package engine

import (
	"errors"
	"log/slog"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/intent"
	"github.com/talgya/citysim/internal/labor"
	"github.com/talgya/citysim/internal/simerr"
)

// periodRun accumulates one period's measured flows across the stages.
type periodRun struct {
	period int

	// Production & Trading
	wages        float64
	output       float64
	consumption  float64
	transactions int
	unmet        agents.GoodVector
	unsold       agents.GoodVector

	// Taxation & Dividend
	tax            float64
	transfers      float64
	publicSpending float64

	// Metabolic
	arrivals int

	// Revision
	matches    []labor.JobMatch
	labor      labor.Stats
	layoffs    int
	deposits   float64
	loans      float64
	investment float64

	skipped []indicators.SkipRecord
}

func newPeriodRun(period int) *periodRun {
	return &periodRun{period: period}
}

// skip records a recoverable error as a SkipRecord. Errors that carry no
// taxonomy kind are recorded as market-state errors.
func (p *periodRun) skip(err error) {
	var se *simerr.Error
	if !errors.As(err, &se) {
		se = simerr.New(simerr.KindMarketState, "%v", err)
	}
	rec := indicators.SkipRecord{
		Stage:     se.Stage,
		AgentKind: se.AgentKind,
		AgentID:   se.AgentID,
		Kind:      string(se.Kind),
		Reason:    se.Message,
	}
	p.skipped = append(p.skipped, rec)
	slog.Debug("agent skipped",
		"period", p.period,
		"stage", rec.Stage,
		"agent_kind", rec.AgentKind,
		"agent_id", rec.AgentID,
		"kind", rec.Kind,
		"reason", rec.Reason,
	)
}

// skipAt records err against a stage unless it already names one.
func (p *periodRun) skipAt(stage intent.Stage, err error) {
	var se *simerr.Error
	if errors.As(err, &se) && se.Stage == "" {
		se.Stage = string(stage)
	}
	p.skip(err)
}
