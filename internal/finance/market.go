// Package finance provides the financial market: interest-bearing deposits,
// firm loans and the rates derived from the policy rate.
package finance

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/simerr"
)

// Defaults for a new Market.
const (
	DefaultPolicyRate     = 0.02
	DefaultDepositSpread  = -0.01
	DefaultLoanSpread     = 0.02
	DefaultPeriodsPerYear = 12
)

// DepositRequest moves household cash into its deposit balance.
type DepositRequest struct {
	Household agents.HouseholdID `json:"household_id"`
	Amount    float64            `json:"amount"`
}

// LoanRequest asks for financing, usually an investment shortfall.
type LoanRequest struct {
	Firm    agents.FirmID `json:"firm_id"`
	Amount  float64       `json:"amount"`
	Purpose string        `json:"purpose"`
}

// TxKind labels a financial transaction.
type TxKind string

const (
	TxDeposit    TxKind = "deposit"
	TxWithdrawal TxKind = "withdrawal"
	TxLoan       TxKind = "loan"
	TxRepayment  TxKind = "repayment"
)

// Transaction is a processed financial request.
type Transaction struct {
	AgentID uint64  `json:"agent_id"`
	Kind    TxKind  `json:"kind"`
	Amount  float64 `json:"amount"`
	Rate    float64 `json:"rate"`
}

// Account is one balance in a book.
type Account struct {
	Owner   uint64  `json:"owner"`
	Balance float64 `json:"balance"`
}

// book is an arena of accounts with an owner index. Accounts keep insertion
// order so totals are summed deterministically.
type book struct {
	accounts []Account
	index    map[uint64]int
}

func newBook() book { return book{index: make(map[uint64]int)} }

func (b *book) get(owner uint64) *Account {
	if i, ok := b.index[owner]; ok {
		return &b.accounts[i]
	}
	return nil
}

func (b *book) upsert(owner uint64) *Account {
	if a := b.get(owner); a != nil {
		return a
	}
	b.index[owner] = len(b.accounts)
	b.accounts = append(b.accounts, Account{Owner: owner})
	return &b.accounts[len(b.accounts)-1]
}

func (b *book) total() float64 {
	sum := 0.0
	for _, a := range b.accounts {
		sum += a.Balance
	}
	return sum
}

// Market holds the deposit and loan books.
type Market struct {
	PolicyRate     float64
	DepositSpread  float64
	LoanSpread     float64
	PeriodsPerYear int
	Approval       ApprovalPolicy

	deposits book
	loans    book

	DepositCount  int
	LoanCount     int
	RejectedLoans int
}

// NewMarket creates a financial market. A nil policy means AlwaysApprove.
func NewMarket(policyRate, depositSpread, loanSpread float64, periodsPerYear int, policy ApprovalPolicy) (*Market, error) {
	if depositSpread > 0 {
		return nil, simerr.Configuration("deposit spread %v must not be positive", depositSpread)
	}
	if loanSpread < 0 {
		return nil, simerr.Configuration("loan spread %v must not be negative", loanSpread)
	}
	if periodsPerYear <= 0 {
		return nil, simerr.Configuration("periods per year %d must be positive", periodsPerYear)
	}
	if policy == nil {
		policy = AlwaysApprove{}
	}
	m := &Market{
		DepositSpread:  depositSpread,
		LoanSpread:     loanSpread,
		PeriodsPerYear: periodsPerYear,
		Approval:       policy,
		deposits:       newBook(),
		loans:          newBook(),
	}
	m.SetPolicyRate(policyRate)
	return m, nil
}

// SetPolicyRate updates the policy rate, floored at zero.
func (m *Market) SetPolicyRate(rate float64) {
	if math.IsNaN(rate) || rate < 0 {
		rate = 0
	}
	m.PolicyRate = rate
}

// DepositRate is the policy rate plus the deposit spread, floored at zero.
func (m *Market) DepositRate() float64 {
	return math.Max(0, m.PolicyRate+m.DepositSpread)
}

// LoanRate is the policy rate plus the loan spread.
func (m *Market) LoanRate() float64 {
	return m.PolicyRate + m.LoanSpread
}

// ProcessDeposits credits each positive request to its household's balance.
// Non-positive requests are skipped and reported.
func (m *Market) ProcessDeposits(reqs []DepositRequest) ([]Transaction, []error) {
	var txs []Transaction
	var errs []error
	rate := m.DepositRate()
	for _, r := range reqs {
		if r.Amount <= 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
			errs = append(errs, simerr.InvalidIntent("household", uint64(r.Household), "deposit amount %v", r.Amount))
			continue
		}
		acct := m.deposits.upsert(uint64(r.Household))
		acct.Balance += r.Amount
		m.DepositCount++
		txs = append(txs, Transaction{AgentID: uint64(r.Household), Kind: TxDeposit, Amount: r.Amount, Rate: rate})
	}
	if len(txs) > 0 {
		slog.Debug("deposits processed", "count", len(txs), "rate", rate)
	}
	return txs, errs
}

// Withdraw removes up to amount from a household's deposits and returns the
// amount actually withdrawn. Requests beyond the balance are clamped and
// reported as InsufficientFunds.
func (m *Market) Withdraw(h agents.HouseholdID, amount float64) (float64, error) {
	if amount <= 0 || math.IsNaN(amount) {
		return 0, simerr.InvalidIntent("household", uint64(h), "withdrawal amount %v", amount)
	}
	acct := m.deposits.get(uint64(h))
	if acct == nil || acct.Balance <= 0 {
		return 0, simerr.InsufficientFunds("household", uint64(h), "no deposits to withdraw %.2f", amount)
	}
	if amount > acct.Balance {
		got := acct.Balance
		acct.Balance = 0
		return got, simerr.InsufficientFunds("household", uint64(h), "withdrawal %.2f clamped to %.2f", amount, got)
	}
	acct.Balance -= amount
	return amount, nil
}

// ProcessLoans runs each request through the approval policy and books the
// approved ones. Rejections are reported as InsufficientFunds.
func (m *Market) ProcessLoans(reqs []LoanRequest) ([]Transaction, []error) {
	var txs []Transaction
	var errs []error
	rate := m.LoanRate()
	for _, r := range reqs {
		if r.Amount <= 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
			errs = append(errs, simerr.InvalidIntent("firm", uint64(r.Firm), "loan amount %v", r.Amount))
			continue
		}
		if err := m.Approval.Approve(r, m.Totals()); err != nil {
			m.RejectedLoans++
			errs = append(errs, simerr.InsufficientFunds("firm", uint64(r.Firm), "loan %.2f rejected: %v", r.Amount, err))
			continue
		}
		acct := m.loans.upsert(uint64(r.Firm))
		acct.Balance += r.Amount
		m.LoanCount++
		txs = append(txs, Transaction{AgentID: uint64(r.Firm), Kind: TxLoan, Amount: r.Amount, Rate: rate})
	}
	if len(txs) > 0 || len(errs) > 0 {
		slog.Debug("loans processed", "approved", len(txs), "rejected", len(errs), "rate", rate)
	}
	return txs, errs
}

// Repay reduces a firm's loan balance and returns the amount applied.
func (m *Market) Repay(f agents.FirmID, amount float64) float64 {
	acct := m.loans.get(uint64(f))
	if acct == nil || amount <= 0 {
		return 0
	}
	paid := math.Min(amount, acct.Balance)
	acct.Balance -= paid
	return paid
}

// Accrual is the interest booked to one account in a period.
type Accrual struct {
	Owner    uint64
	Interest float64
}

// Accrue books one period of interest: deposits at the deposit rate and
// loans at the loan rate, both divided by PeriodsPerYear.
func (m *Market) Accrue() (deposits, loans []Accrual) {
	dr := m.DepositRate() / float64(m.PeriodsPerYear)
	lr := m.LoanRate() / float64(m.PeriodsPerYear)
	for i := range m.deposits.accounts {
		a := &m.deposits.accounts[i]
		if a.Balance <= 0 {
			continue
		}
		interest := a.Balance * dr
		a.Balance += interest
		deposits = append(deposits, Accrual{Owner: a.Owner, Interest: interest})
	}
	for i := range m.loans.accounts {
		a := &m.loans.accounts[i]
		if a.Balance <= 0 {
			continue
		}
		interest := a.Balance * lr
		a.Balance += interest
		loans = append(loans, Accrual{Owner: a.Owner, Interest: interest})
	}
	return deposits, loans
}

// DepositBalance returns a household's deposit balance.
func (m *Market) DepositBalance(h agents.HouseholdID) float64 {
	if a := m.deposits.get(uint64(h)); a != nil {
		return a.Balance
	}
	return 0
}

// LoanBalance returns a firm's outstanding loan balance.
func (m *Market) LoanBalance(f agents.FirmID) float64 {
	if a := m.loans.get(uint64(f)); a != nil {
		return a.Balance
	}
	return 0
}

// Totals returns the aggregate book sizes.
func (m *Market) Totals() Totals {
	return Totals{Deposits: m.deposits.total(), Loans: m.loans.total()}
}

// LoanToDeposit is total loans over total deposits, 0 with no deposits.
func (m *Market) LoanToDeposit() float64 {
	return m.Totals().LoanToDeposit()
}

// Totals is the aggregate state of both books.
type Totals struct {
	Deposits float64 `json:"deposits"`
	Loans    float64 `json:"loans"`
}

// LoanToDeposit is Loans/Deposits, 0 with no deposits.
func (t Totals) LoanToDeposit() float64 {
	if t.Deposits <= 0 {
		return 0
	}
	return t.Loans / t.Deposits
}

// String implements fmt.Stringer for log output.
func (t Totals) String() string {
	return fmt.Sprintf("deposits=%.2f loans=%.2f ltd=%.3f", t.Deposits, t.Loans, t.LoanToDeposit())
}
