package finance

// State is the serializable state of a Market. The approval policy is
// configuration and is supplied again on restore.
type State struct {
	PolicyRate     float64   `json:"policy_rate"`
	DepositSpread  float64   `json:"deposit_spread"`
	LoanSpread     float64   `json:"loan_spread"`
	PeriodsPerYear int       `json:"periods_per_year"`
	Deposits       []Account `json:"deposits"`
	Loans          []Account `json:"loans"`
	DepositCount   int       `json:"deposit_count"`
	LoanCount      int       `json:"loan_count"`
	RejectedLoans  int       `json:"rejected_loans"`
}

// Snapshot captures balances, rates and counters.
func (m *Market) Snapshot() State {
	return State{
		PolicyRate:     m.PolicyRate,
		DepositSpread:  m.DepositSpread,
		LoanSpread:     m.LoanSpread,
		PeriodsPerYear: m.PeriodsPerYear,
		Deposits:       append([]Account(nil), m.deposits.accounts...),
		Loans:          append([]Account(nil), m.loans.accounts...),
		DepositCount:   m.DepositCount,
		LoanCount:      m.LoanCount,
		RejectedLoans:  m.RejectedLoans,
	}
}

// RestoreMarket rebuilds a Market from a snapshot.
func RestoreMarket(s State, policy ApprovalPolicy) (*Market, error) {
	m, err := NewMarket(s.PolicyRate, s.DepositSpread, s.LoanSpread, s.PeriodsPerYear, policy)
	if err != nil {
		return nil, err
	}
	for _, a := range s.Deposits {
		m.deposits.upsert(a.Owner).Balance = a.Balance
	}
	for _, a := range s.Loans {
		m.loans.upsert(a.Owner).Balance = a.Balance
	}
	m.DepositCount = s.DepositCount
	m.LoanCount = s.LoanCount
	m.RejectedLoans = s.RejectedLoans
	return m, nil
}
