package finance

import "fmt"

// ApprovalPolicy decides whether a loan request is granted given the
// current book totals.
type ApprovalPolicy interface {
	Approve(req LoanRequest, book Totals) error
}

// AlwaysApprove grants every loan.
type AlwaysApprove struct{}

func (AlwaysApprove) Approve(LoanRequest, Totals) error { return nil }

// LimitPolicy caps single loans and the book's loan-to-deposit ratio.
// A zero limit is not enforced. The ratio is only checked once deposits exist.
type LimitPolicy struct {
	MaxLoan          float64
	MaxLoanToDeposit float64
}

func (p LimitPolicy) Approve(req LoanRequest, book Totals) error {
	if p.MaxLoan > 0 && req.Amount > p.MaxLoan {
		return fmt.Errorf("amount %.2f exceeds limit %.2f", req.Amount, p.MaxLoan)
	}
	if p.MaxLoanToDeposit > 0 && book.Deposits > 0 {
		ltd := (book.Loans + req.Amount) / book.Deposits
		if ltd > p.MaxLoanToDeposit {
			return fmt.Errorf("loan-to-deposit %.3f exceeds limit %.3f", ltd, p.MaxLoanToDeposit)
		}
	}
	return nil
}
