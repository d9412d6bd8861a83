package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/simerr"
)

func newMarket(t *testing.T, policy ApprovalPolicy) *Market {
	t.Helper()
	m, err := NewMarket(0.05, -0.01, 0.02, 12, policy)
	require.NoError(t, err)
	return m
}

func TestRates(t *testing.T) {
	m := newMarket(t, nil)

	assert.InDelta(t, 0.04, m.DepositRate(), 1e-12)
	assert.InDelta(t, 0.07, m.LoanRate(), 1e-12)

	m.SetPolicyRate(0.005)
	assert.Zero(t, m.DepositRate(), "deposit rate is floored at zero")
	assert.InDelta(t, 0.025, m.LoanRate(), 1e-12)

	m.SetPolicyRate(-1)
	assert.Zero(t, m.PolicyRate)
}

func TestNewMarket_RejectsBadSpreads(t *testing.T) {
	_, err := NewMarket(0.02, 0.01, 0.02, 12, nil)
	assert.True(t, simerr.Is(err, simerr.KindConfiguration))

	_, err = NewMarket(0.02, -0.01, -0.02, 12, nil)
	assert.True(t, simerr.Is(err, simerr.KindConfiguration))

	_, err = NewMarket(0.02, -0.01, 0.02, 0, nil)
	assert.True(t, simerr.IsFatal(err))
}

func TestProcessDeposits(t *testing.T) {
	m := newMarket(t, nil)

	txs, errs := m.ProcessDeposits([]DepositRequest{
		{Household: 1, Amount: 100},
		{Household: 2, Amount: -5},
		{Household: 1, Amount: 50},
	})

	require.Len(t, txs, 2)
	require.Len(t, errs, 1)
	assert.True(t, simerr.Is(errs[0], simerr.KindInvalidIntent))
	assert.Equal(t, 150.0, m.DepositBalance(1))
	assert.Zero(t, m.DepositBalance(2))
	assert.InDelta(t, 0.04, txs[0].Rate, 1e-12)
}

func TestWithdraw_ClampsToBalance(t *testing.T) {
	m := newMarket(t, nil)
	m.ProcessDeposits([]DepositRequest{{Household: 1, Amount: 100}})

	got, err := m.Withdraw(1, 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, got)

	got, err = m.Withdraw(1, 500)
	assert.True(t, simerr.Is(err, simerr.KindInsufficientFunds))
	assert.Equal(t, 70.0, got)
	assert.Zero(t, m.DepositBalance(1))

	got, err = m.Withdraw(9, 10)
	assert.Error(t, err)
	assert.Zero(t, got)
}

func TestProcessLoans_AlwaysApproveByDefault(t *testing.T) {
	m := newMarket(t, nil)

	txs, errs := m.ProcessLoans([]LoanRequest{{Firm: 1, Amount: 1e9, Purpose: "capital_investment"}})

	require.Len(t, txs, 1)
	assert.Empty(t, errs)
	assert.Equal(t, 1e9, m.LoanBalance(1))
	assert.InDelta(t, 0.07, txs[0].Rate, 1e-12)
}

func TestProcessLoans_LimitPolicy(t *testing.T) {
	m := newMarket(t, LimitPolicy{MaxLoan: 1000, MaxLoanToDeposit: 0.9})
	m.ProcessDeposits([]DepositRequest{{Household: 1, Amount: 1000}})

	txs, errs := m.ProcessLoans([]LoanRequest{
		{Firm: 1, Amount: 5000}, // above MaxLoan
		{Firm: 2, Amount: 800},  // LTD 0.8
		{Firm: 3, Amount: 200},  // LTD would be 1.0
	})

	require.Len(t, txs, 1)
	assert.Equal(t, uint64(2), txs[0].AgentID)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, simerr.Is(err, simerr.KindInsufficientFunds))
	}
	assert.Equal(t, 2, m.RejectedLoans)
	assert.InDelta(t, 0.8, m.LoanToDeposit(), 1e-12)
}

func TestAccrue(t *testing.T) {
	m := newMarket(t, nil)
	m.ProcessDeposits([]DepositRequest{{Household: 1, Amount: 1200}})
	m.ProcessLoans([]LoanRequest{{Firm: 1, Amount: 1200}})

	deps, loans := m.Accrue()

	require.Len(t, deps, 1)
	require.Len(t, loans, 1)
	assert.InDelta(t, 4.0, deps[0].Interest, 1e-9) // 1200 × 0.04 / 12
	assert.InDelta(t, 7.0, loans[0].Interest, 1e-9)
	assert.InDelta(t, 1204.0, m.DepositBalance(1), 1e-9)
	assert.InDelta(t, 1207.0, m.LoanBalance(1), 1e-9)
}

func TestRepay(t *testing.T) {
	m := newMarket(t, nil)
	m.ProcessLoans([]LoanRequest{{Firm: 1, Amount: 100}})

	assert.Equal(t, 40.0, m.Repay(1, 40))
	assert.Equal(t, 60.0, m.Repay(1, 500))
	assert.Zero(t, m.LoanBalance(1))
	assert.Zero(t, m.Repay(2, 10))
}

func TestLoanToDeposit_NoDeposits(t *testing.T) {
	m := newMarket(t, nil)
	m.ProcessLoans([]LoanRequest{{Firm: 1, Amount: 100}})
	assert.Zero(t, m.LoanToDeposit())
}

func TestSnapshotRestore(t *testing.T) {
	m := newMarket(t, nil)
	m.ProcessDeposits([]DepositRequest{{Household: 3, Amount: 10}, {Household: 1, Amount: 20}})
	m.ProcessLoans([]LoanRequest{{Firm: 2, Amount: 15}})

	r, err := RestoreMarket(m.Snapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, m.Snapshot(), r.Snapshot())
	assert.Equal(t, m.Totals(), r.Totals())
	assert.Equal(t, 20.0, r.DepositBalance(1))
}
