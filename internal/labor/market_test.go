package labor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/citysim/internal/agents"
)

func newMarket(t *testing.T, p float64) *Market {
	t.Helper()
	m, err := NewMarket(p, DefaultScoreThreshold)
	require.NoError(t, err)
	return m
}

func nurse(id agents.HouseholdID) JobSeeker {
	return JobSeeker{
		Household:   id,
		Skills:      agents.SkillSet{agents.SkillHealthcare: 0.9},
		DesiredWage: 2000,
	}
}

func TestMatch_SingleQualifyingPosting(t *testing.T) {
	m := newMarket(t, 1.0)
	postings := []JobPosting{
		{ID: 1, Firm: 10, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillHealthcare: 0.7}, VacancyCount: 2},
		{ID: 2, Firm: 20, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillEducation: 0.7}, VacancyCount: 1},
	}

	matches, stats := m.Match(nil, []JobSeeker{nurse(5)}, postings)

	require.Len(t, matches, 1)
	assert.Equal(t, agents.HouseholdID(5), matches[0].Household)
	assert.Equal(t, agents.FirmID(10), matches[0].Firm)
	assert.Equal(t, 3000.0, matches[0].Wage)
	assert.Equal(t, 3, stats.Offered)
	assert.Equal(t, 1, stats.Filled)
	assert.InDelta(t, 1.0/3.0, stats.FillRate, 1e-9)

	// The only seeker was taken, so neither leftover posting saw a candidate.
	assert.Equal(t, 2, stats.Rejections[ReasonNoCandidates])
	assert.Zero(t, stats.Rejections[ReasonScoreTooLow])
}

func TestMatch_VacancyFilled(t *testing.T) {
	m := newMarket(t, 1.0)
	postings := []JobPosting{
		{ID: 1, Firm: 10, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillHealthcare: 0.7}, VacancyCount: 1},
	}

	matches, stats := m.Match(nil, []JobSeeker{nurse(1), nurse(2)}, postings)

	require.Len(t, matches, 1)
	assert.Equal(t, agents.HouseholdID(1), matches[0].Household, "ties break toward earlier seekers")
	assert.Equal(t, 1, stats.Rejections[ReasonVacancyFilled])
	assert.Equal(t, 1.0, stats.FillRate)
}

func TestMatch_ProbabilityMiss(t *testing.T) {
	m := newMarket(t, 0.0)
	postings := []JobPosting{
		{ID: 1, Firm: 10, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillHealthcare: 0.7}, VacancyCount: 1},
	}

	matches, stats := m.Match(nil, []JobSeeker{nurse(1)}, postings)

	assert.Empty(t, matches)
	assert.Equal(t, 2, stats.Rejections[ReasonProbabilityMiss])
	assert.Zero(t, stats.FillRate)
}

func TestMatch_PostingFillsOneSlotPerMatch(t *testing.T) {
	m := newMarket(t, 1.0)
	postings := []JobPosting{
		{ID: 7, Firm: 10, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillHealthcare: 0.7}, VacancyCount: 2},
	}

	matches, stats := m.Match(nil, []JobSeeker{nurse(1), nurse(2), nurse(3)}, postings)

	require.Len(t, matches, 2)
	for slot, mt := range matches {
		assert.Equal(t, uint64(7), mt.PostingID)
		assert.Equal(t, slot, mt.Slot)
	}
	assert.NotEqual(t, matches[0].Household, matches[1].Household)
	assert.Equal(t, 1.0, stats.FillRate)
	assert.Equal(t, 1, stats.Rejections[ReasonVacancyFilled])
}

func TestMatch_NoPostings(t *testing.T) {
	m := newMarket(t, 1.0)

	matches, stats := m.Match(nil, []JobSeeker{nurse(1)}, nil)

	assert.Empty(t, matches)
	assert.Zero(t, stats.Offered)
	assert.Zero(t, stats.FillRate)
	require.Len(t, stats.Unmatched, 1)
	assert.Equal(t, ReasonNoCandidates, stats.Unmatched[0].Reason)
}

func TestMatch_HigherScoreWins(t *testing.T) {
	m := newMarket(t, 1.0)
	postings := []JobPosting{
		{ID: 1, Firm: 10, Wage: 3000, RequiredSkills: agents.SkillSet{agents.SkillHealthcare: 0.7}, VacancyCount: 1},
	}
	weak := JobSeeker{Household: 1, Skills: agents.SkillSet{agents.SkillHealthcare: 0.5}, DesiredWage: 2000}
	strong := nurse(2)

	matches, _ := m.Match(nil, []JobSeeker{weak, strong}, postings)

	require.Len(t, matches, 1)
	assert.Equal(t, agents.HouseholdID(2), matches[0].Household)
}

func randomBook(rng *rand.Rand) ([]JobSeeker, []JobPosting) {
	var seekers []JobSeeker
	for i := 0; i < rng.Intn(15); i++ {
		var s agents.SkillSet
		s[rng.Intn(agents.NumSkills)] = rng.Float64()
		seekers = append(seekers, JobSeeker{Household: agents.HouseholdID(i + 1), Skills: s, DesiredWage: 1000 + rng.Float64()*2000})
	}
	var postings []JobPosting
	for i := 0; i < rng.Intn(6); i++ {
		var r agents.SkillSet
		r[rng.Intn(agents.NumSkills)] = 0.5
		postings = append(postings, JobPosting{ID: uint64(i + 1), Firm: agents.FirmID(i + 1), Wage: 1500 + rng.Float64()*2000, RequiredSkills: r, VacancyCount: rng.Intn(3)})
	}
	return seekers, postings
}

func TestMatch_OneToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := newMarket(t, 0.7)

	for round := 0; round < 100; round++ {
		seekers, postings := randomBook(rng)
		matches, stats := m.Match(rng, seekers, postings)

		households := map[agents.HouseholdID]bool{}
		slots := map[[2]uint64]bool{}
		perPosting := map[uint64]int{}
		for _, mt := range matches {
			assert.False(t, households[mt.Household], "household matched twice")
			households[mt.Household] = true
			key := [2]uint64{mt.PostingID, uint64(mt.Slot)}
			assert.False(t, slots[key], "slot matched twice")
			slots[key] = true
			perPosting[mt.PostingID]++
		}
		for _, p := range postings {
			assert.LessOrEqual(t, perPosting[p.ID], max(p.VacancyCount, 0))
		}
		assert.LessOrEqual(t, stats.Filled, stats.Offered)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	seekers, postings := randomBook(rand.New(rand.NewSource(8)))
	m := newMarket(t, 0.5)

	a, _ := m.Match(rand.New(rand.NewSource(99)), seekers, postings)
	b, _ := m.Match(rand.New(rand.NewSource(99)), seekers, postings)

	assert.Equal(t, a, b)
}

func TestWageFit(t *testing.T) {
	assert.Equal(t, 1.0, WageFit(3000, 2000))
	assert.InDelta(t, 0.5, WageFit(1500, 2000), 1e-9)
	assert.Equal(t, 1.0, WageFit(5, 0))
}

func TestNewMarket_RejectsBadParameters(t *testing.T) {
	_, err := NewMarket(1.5, 0.4)
	assert.Error(t, err)
	_, err = NewMarket(0.7, -0.1)
	assert.Error(t, err)
}
