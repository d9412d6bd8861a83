// Package labor matches job seekers to job postings each period.
//
// Every seeker/posting pair is scored, and pairs are considered in
// descending score order. A pair becomes a match only when its score clears
// the threshold and an independent Bernoulli draw succeeds. Matching is
// greedy and one-to-one per vacancy: a seeker takes at most one job and a
// posting fills at most its vacancy count.
package labor

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/talgya/citysim/internal/agents"
	"github.com/talgya/citysim/internal/entropy"
)

// Score weights.
const (
	SkillWeight = 0.7
	WageWeight  = 0.3
)

// Defaults for a new Market.
const (
	DefaultMatchProbability = 0.7
	DefaultScoreThreshold   = 0.4
)

// JobPosting is a firm's open vacancies this period.
type JobPosting struct {
	ID             uint64          `json:"id"`
	Firm           agents.FirmID   `json:"firm_id"`
	Wage           float64         `json:"wage"`
	RequiredSkills agents.SkillSet `json:"required_skills"`
	VacancyCount   int             `json:"vacancy_count"`
}

// JobSeeker is an unemployed household looking for work this period.
type JobSeeker struct {
	Household   agents.HouseholdID `json:"household_id"`
	Skills      agents.SkillSet    `json:"skills"`
	DesiredWage float64            `json:"desired_wage"`
}

// JobMatch pairs a household with one vacancy slot of a posting.
type JobMatch struct {
	Household agents.HouseholdID `json:"household_id"`
	Firm      agents.FirmID      `json:"firm_id"`
	PostingID uint64             `json:"posting_id"`
	Slot      int                `json:"slot"`
	Wage      float64            `json:"wage"`
	Score     float64            `json:"score"`
}

// Reason categorizes why a seeker or posting went unmatched.
type Reason string

const (
	ReasonScoreTooLow     Reason = "score_too_low"
	ReasonVacancyFilled   Reason = "vacancy_filled"
	ReasonProbabilityMiss Reason = "probability_miss"
	ReasonNoCandidates    Reason = "no_candidates"
)

// Unmatched records an entity left without a match and the first reason a
// candidate pair involving it failed.
type Unmatched struct {
	Kind   string `json:"kind"` // "seeker" or "posting"
	ID     uint64 `json:"id"`
	Reason Reason `json:"reason"`
}

// Stats summarizes one matching round.
type Stats struct {
	Seekers    int            `json:"seekers"`
	Offered    int            `json:"offered"`
	Filled     int            `json:"filled"`
	FillRate   float64        `json:"fill_rate"`
	Rejections map[Reason]int `json:"rejections"`
	Unmatched  []Unmatched    `json:"unmatched,omitempty"`
}

// Market holds matching parameters and lifetime counters.
type Market struct {
	MatchProbability float64
	ScoreThreshold   float64

	TotalOffered int
	TotalSeekers int
	TotalMatches int
}

// NewMarket creates a labor market.
func NewMarket(probability, threshold float64) (*Market, error) {
	if probability < 0 || probability > 1 {
		return nil, fmt.Errorf("labor market: match probability %v outside [0,1]", probability)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("labor market: score threshold %v outside [0,1]", threshold)
	}
	return &Market{MatchProbability: probability, ScoreThreshold: threshold}, nil
}

// WageFit is how well an offered wage meets a desired wage: the offer
// relative to one and a half times the desired wage, capped at 1.
func WageFit(offered, desired float64) float64 {
	denom := desired * 1.5
	if denom < 1 {
		denom = 1
	}
	fit := offered / denom
	if fit > 1 {
		return 1
	}
	if fit < 0 {
		return 0
	}
	return fit
}

// Score combines skill fit and wage fit.
func Score(s JobSeeker, p JobPosting) float64 {
	return SkillWeight*agents.SkillFit(s.Skills, p.RequiredSkills) + WageWeight*WageFit(p.Wage, s.DesiredWage)
}

type pair struct {
	seeker  int
	posting int
	score   float64
}

// Match runs one matching round. rng drives the Bernoulli draws; a nil rng
// is only valid when MatchProbability is 0 or 1.
//
// A household appears in at most one match. A posting appears once per
// filled vacancy, each match taking the next Slot, so (PostingID, Slot) is
// unique across the result.
func (m *Market) Match(rng *rand.Rand, seekers []JobSeeker, postings []JobPosting) ([]JobMatch, Stats) {
	stats := Stats{Seekers: len(seekers), Rejections: make(map[Reason]int)}

	remaining := make([]int, len(postings))
	for i, p := range postings {
		if p.VacancyCount > 0 {
			remaining[i] = p.VacancyCount
			stats.Offered += p.VacancyCount
		}
	}

	pairs := make([]pair, 0, len(seekers)*len(postings))
	for si, s := range seekers {
		for pi := range postings {
			if remaining[pi] == 0 {
				continue
			}
			pairs = append(pairs, pair{seeker: si, posting: pi, score: Score(s, postings[pi])})
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].score != pairs[b].score {
			return pairs[a].score > pairs[b].score
		}
		if pairs[a].seeker != pairs[b].seeker {
			return pairs[a].seeker < pairs[b].seeker
		}
		return pairs[a].posting < pairs[b].posting
	})

	matched := make([]bool, len(seekers))
	seekerReason := make([]Reason, len(seekers))
	postingReason := make([]Reason, len(postings))
	note := func(r *Reason, why Reason) {
		if *r == "" {
			*r = why
		}
	}

	var matches []JobMatch
	for _, c := range pairs {
		if matched[c.seeker] {
			continue
		}
		p := postings[c.posting]
		if remaining[c.posting] == 0 {
			note(&seekerReason[c.seeker], ReasonVacancyFilled)
			continue
		}
		if c.score <= m.ScoreThreshold {
			note(&seekerReason[c.seeker], ReasonScoreTooLow)
			note(&postingReason[c.posting], ReasonScoreTooLow)
			continue
		}
		if !entropy.Bernoulli(rng, m.MatchProbability) {
			note(&seekerReason[c.seeker], ReasonProbabilityMiss)
			note(&postingReason[c.posting], ReasonProbabilityMiss)
			continue
		}

		slot := p.VacancyCount - remaining[c.posting]
		remaining[c.posting]--
		matched[c.seeker] = true
		matches = append(matches, JobMatch{
			Household: seekers[c.seeker].Household,
			Firm:      p.Firm,
			PostingID: p.ID,
			Slot:      slot,
			Wage:      p.Wage,
			Score:     c.score,
		})
	}

	for si, s := range seekers {
		if matched[si] {
			continue
		}
		r := seekerReason[si]
		if r == "" {
			r = ReasonNoCandidates
		}
		stats.Rejections[r]++
		stats.Unmatched = append(stats.Unmatched, Unmatched{Kind: "seeker", ID: uint64(s.Household), Reason: r})
		slog.Debug("seeker unmatched", "household", s.Household, "reason", r)
	}
	for pi, p := range postings {
		if remaining[pi] == 0 {
			continue
		}
		r := postingReason[pi]
		if r == "" {
			r = ReasonNoCandidates
		}
		stats.Rejections[r]++
		stats.Unmatched = append(stats.Unmatched, Unmatched{Kind: "posting", ID: p.ID, Reason: r})
		slog.Debug("posting unfilled", "posting", p.ID, "firm", p.Firm, "open", remaining[pi], "reason", r)
	}

	stats.Filled = len(matches)
	if stats.Offered > 0 {
		stats.FillRate = float64(stats.Filled) / float64(stats.Offered)
	}

	m.TotalOffered += stats.Offered
	m.TotalSeekers += stats.Seekers
	m.TotalMatches += stats.Filled

	slog.Debug("labor market matched",
		"seekers", stats.Seekers,
		"offered", stats.Offered,
		"filled", stats.Filled,
	)
	return matches, stats
}
