package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/economy"
	"github.com/talgya/citysim/internal/finance"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/labor"
)

// State is a serializable snapshot sufficient to resume a run.
type State struct {
	Seed            int64              `json:"seed"`
	Period          int                `json:"period"`
	Phase           Phase              `json:"phase"`
	NextHouseholdID agents.HouseholdID `json:"next_household_id"`

	Households []agents.Household `json:"households"`
	Firms      []agents.Firm      `json:"firms"`
	Government Government         `json:"government"`

	Goods   economy.State `json:"goods"`
	Finance finance.State `json:"finance"`

	LastUnmet  agents.GoodVector `json:"last_unmet"`
	LastUnsold agents.GoodVector `json:"last_unsold"`
	LastFill   labor.Stats       `json:"last_fill"`
}

// Snapshot deep-copies the simulation state.
func (s *Simulation) Snapshot() State {
	st := State{
		Seed:            s.Seed(),
		Period:          s.Period,
		Phase:           s.Phase,
		NextHouseholdID: s.Spawner.NextID(),
		Households:      make([]agents.Household, len(s.Households)),
		Firms:           make([]agents.Firm, len(s.Firms)),
		Government:      s.Government,
		Goods:           s.Goods.Snapshot(),
		Finance:         s.Finance.Snapshot(),
		LastUnmet:       s.LastUnmet,
		LastUnsold:      s.LastUnsold,
		LastFill:        s.LastFill,
	}
	for i, h := range s.Households {
		st.Households[i] = cloneHousehold(h)
	}
	for i, f := range s.Firms {
		st.Firms[i] = cloneFirm(f)
	}
	return st
}

// Marshal renders the state as JSON.
func (st *State) Marshal() ([]byte, error) {
	return json.Marshal(st)
}

// UnmarshalState parses a JSON state.
func UnmarshalState(data []byte) (State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}

// Restore rebuilds a simulation from a snapshot and the history recorded so
// far. The configuration must be the one the run started with.
func Restore(cfg config.Config, st State, hist *indicators.History) (*Simulation, error) {
	if hist == nil {
		hist = indicators.NewHistory()
	}
	if hist.Len() != st.Period {
		return nil, fmt.Errorf("restore: history has %d records, state is at period %d", hist.Len(), st.Period)
	}
	if st.Seed != cfg.Simulation.Seed {
		return nil, fmt.Errorf("restore: state seed %d does not match config seed %d", st.Seed, cfg.Simulation.Seed)
	}
	s, err := newShell(cfg, hist)
	if err != nil {
		return nil, err
	}
	if err := s.load(st); err != nil {
		return nil, err
	}
	slog.Info("simulation restored",
		"period", s.Period,
		"phase", s.Phase,
		"households", len(s.Households),
		"firms", len(s.Firms),
	)
	return s, nil
}

// load replaces the simulation's mutable state with st.
func (s *Simulation) load(st State) error {
	goods, err := economy.RestoreMarket(st.Goods)
	if err != nil {
		return err
	}
	fin, err := finance.RestoreMarket(st.Finance, s.cfg.Finance.ApprovalPolicy())
	if err != nil {
		return err
	}

	s.Households = make([]*agents.Household, 0, len(st.Households))
	s.HouseholdIndex = make(map[agents.HouseholdID]int, len(st.Households))
	for i := range st.Households {
		h := cloneHousehold(&st.Households[i])
		s.addHousehold(&h)
	}
	s.Firms = make([]*agents.Firm, 0, len(st.Firms))
	s.FirmIndex = make(map[agents.FirmID]int, len(st.Firms))
	for i := range st.Firms {
		f := cloneFirm(&st.Firms[i])
		s.addFirm(&f)
	}

	s.Period = st.Period
	s.Phase = st.Phase
	s.Government = st.Government
	s.Goods = goods
	s.Finance = fin
	s.Spawner.SetNextID(st.NextHouseholdID)
	s.LastUnmet = st.LastUnmet
	s.LastUnsold = st.LastUnsold
	s.LastFill = st.LastFill
	return nil
}

func cloneHousehold(h *agents.Household) agents.Household {
	c := *h
	if h.Employer != nil {
		id := *h.Employer
		c.Employer = &id
	}
	return c
}

func cloneFirm(f *agents.Firm) agents.Firm {
	c := *f
	c.Employees = append([]agents.HouseholdID{}, f.Employees...)
	return c
}
