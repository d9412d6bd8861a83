// Package agents provides the household and firm data model, the good and
// skill catalogs, firm templates, the household spawner and production.
package agents

// HouseholdID is a unique identifier for a household.
type HouseholdID uint64

// FirmID is a unique identifier for a firm.
type FirmID uint64

// EmploymentStatus tracks whether a household holds a job.
type EmploymentStatus uint8

const (
	StatusUnemployed EmploymentStatus = 0
	StatusEmployed   EmploymentStatus = 1
)

func (s EmploymentStatus) String() string {
	if s == StatusEmployed {
		return "employed"
	}
	return "unemployed"
}

// Household is a consuming, working, saving agent.
type Household struct {
	ID   HouseholdID `json:"id"`
	Name string      `json:"name"`
	Age  uint16      `json:"age"`

	Cash   float64  `json:"cash"`
	Skills SkillSet `json:"skills"`

	// Employment
	Employer         *FirmID          `json:"employer,omitempty"`
	Status           EmploymentStatus `json:"status"`
	Wage             float64          `json:"wage"`      // Current wage, 0 if unemployed
	LastWage         float64          `json:"last_wage"` // Basis for unemployment benefit
	DesiredWage      float64          `json:"desired_wage"`
	MonthsUnemployed int              `json:"months_unemployed"`

	// Cumulative spending from settled transactions.
	FoodSpending  float64 `json:"food_spending"`
	TotalSpending float64 `json:"total_spending"`

	// Current-period flows, reset at the start of every step.
	Period PeriodFlows `json:"period"`

	JoinedPeriod int `json:"joined_period"`
}

// PeriodFlows records one household's money flows within a period.
type PeriodFlows struct {
	WageIncome    float64 `json:"wage_income"`
	Tax           float64 `json:"tax"`
	Transfers     float64 `json:"transfers"`
	Interest      float64 `json:"interest"`
	FoodSpending  float64 `json:"food_spending"`
	TotalSpending float64 `json:"total_spending"`
}

// DisposableIncome is gross income plus transfers less tax.
func (p PeriodFlows) DisposableIncome() float64 {
	return p.WageIncome + p.Interest + p.Transfers - p.Tax
}

// Employed reports whether the household currently has an employer.
func (h *Household) Employed() bool {
	return h.Status == StatusEmployed && h.Employer != nil
}

// Hire links the household to a firm at a wage.
func (h *Household) Hire(firm FirmID, wage float64) {
	f := firm
	h.Employer = &f
	h.Status = StatusEmployed
	h.Wage = wage
	h.LastWage = wage
	h.MonthsUnemployed = 0
}

// Separate clears the employment link.
func (h *Household) Separate() {
	if h.Wage > 0 {
		h.LastWage = h.Wage
	}
	h.Employer = nil
	h.Status = StatusUnemployed
	h.Wage = 0
}

// Firm is a producing, hiring, borrowing agent.
type Firm struct {
	ID   FirmID `json:"id"`
	Name string `json:"name"`
	Good GoodID `json:"good"`

	Cash    float64 `json:"cash"`
	Capital float64 `json:"capital"`
	Debt    float64 `json:"debt"`

	// Production technology
	Alpha float64 `json:"alpha"`
	TFP   float64 `json:"tfp"`

	Inventory GoodVector `json:"inventory"`
	Prices    GoodVector `json:"prices"`

	// Labor
	Employees         []HouseholdID `json:"employees"` // Kept sorted ascending
	Vacancies         int           `json:"vacancies"`
	OfferedWage       float64       `json:"offered_wage"`
	SkillRequirements SkillSet      `json:"skill_requirements"`

	// Plans
	TargetOutput      float64 `json:"target_output"`
	PendingInvestment float64 `json:"pending_investment"`

	// Last period
	Output  float64 `json:"output"`
	Sales   float64 `json:"sales"`
	Revenue float64 `json:"revenue"`

	// Solvency
	NegativeCashPeriods int  `json:"negative_cash_periods"`
	Bankrupt            bool `json:"bankrupt"`
}

// HasEmployee reports whether id is on the payroll.
func (f *Firm) HasEmployee(id HouseholdID) bool {
	_, ok := f.employeeIndex(id)
	return ok
}

// AddEmployee inserts id keeping Employees sorted.
func (f *Firm) AddEmployee(id HouseholdID) {
	i, ok := f.employeeIndex(id)
	if ok {
		return
	}
	f.Employees = append(f.Employees, 0)
	copy(f.Employees[i+1:], f.Employees[i:])
	f.Employees[i] = id
}

// RemoveEmployee drops id from the payroll.
func (f *Firm) RemoveEmployee(id HouseholdID) {
	i, ok := f.employeeIndex(id)
	if !ok {
		return
	}
	f.Employees = append(f.Employees[:i], f.Employees[i+1:]...)
}

func (f *Firm) employeeIndex(id HouseholdID) (int, bool) {
	lo, hi := 0, len(f.Employees)
	for lo < hi {
		mid := (lo + hi) / 2
		if f.Employees[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(f.Employees) && f.Employees[lo] == id
}

// RecordSolvency updates the negative-cash streak and flips the bankrupt flag
// once the streak reaches limit. Returns true on the period the firm fails.
func (f *Firm) RecordSolvency(limit int) bool {
	if f.Bankrupt {
		return false
	}
	if f.Cash < 0 {
		f.NegativeCashPeriods++
	} else {
		f.NegativeCashPeriods = 0
	}
	if limit > 0 && f.NegativeCashPeriods >= limit {
		f.Bankrupt = true
		f.Vacancies = 0
		f.PendingInvestment = 0
		return true
	}
	return false
}
