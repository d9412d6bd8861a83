// Household spawning: creates the initial population and the Metabolic-stage
// move-in cohorts with demographics, skills and starting cash.
package agents

import (
	"fmt"
	"math"
	"math/rand"
)

// SpawnConfig controls household profile generation.
type SpawnConfig struct {
	IncomeLogMean   float64 // Mean of log(initial cash)
	IncomeLogStd    float64
	AgeMean         float64
	AgeStd          float64
	BaseMonthlyWage float64 // Desired wage before the skill multiplier
}

// DefaultSpawnConfig returns the standard profile distribution.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		IncomeLogMean:   10.5,
		IncomeLogStd:    0.5,
		AgeMean:         40,
		AgeStd:          12,
		BaseMonthlyWage: 2000,
	}
}

// Spawner creates households. Randomness is supplied per call so a run can
// derive the generator from (seed, period) and replay after a resume.
type Spawner struct {
	cfg    SpawnConfig
	nextID HouseholdID
}

// NewSpawner creates a household spawner.
func NewSpawner(cfg SpawnConfig) *Spawner {
	return &Spawner{cfg: cfg, nextID: 1}
}

// NextID returns the id the next household will receive.
func (s *Spawner) NextID() HouseholdID { return s.nextID }

// SetNextID sets the next household ID to be issued (used when restoring).
func (s *Spawner) SetNextID(id HouseholdID) {
	s.nextID = id
}

// Spawn creates count households that join in the given period.
func (s *Spawner) Spawn(rng *rand.Rand, count int, period int) []*Household {
	out := make([]*Household, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne(rng, period))
	}
	return out
}

type education uint8

const (
	educationHighSchool education = iota
	educationCollege
	educationGraduate
)

func (s *Spawner) spawnOne(rng *rand.Rand, period int) *Household {
	id := s.nextID
	s.nextID++

	age := clamp(s.cfg.AgeMean+rng.NormFloat64()*s.cfg.AgeStd, 20, 70)
	edu := s.education(rng, age)
	skills := s.skills(rng, edu)

	cash := math.Exp(s.cfg.IncomeLogMean + rng.NormFloat64()*s.cfg.IncomeLogStd)

	return &Household{
		ID:           id,
		Name:         s.generateName(rng, id),
		Age:          uint16(age),
		Cash:         math.Round(cash*100) / 100,
		Skills:       skills,
		Status:       StatusUnemployed,
		DesiredWage:  s.cfg.BaseMonthlyWage * wageMultiplier(skills),
		JoinedPeriod: period,
	}
}

func (s *Spawner) education(rng *rand.Rand, age float64) education {
	// Younger cohorts skew toward higher education.
	var weights [3]float64
	switch {
	case age < 25:
		weights = [3]float64{0.2, 0.5, 0.3}
	case age < 40:
		weights = [3]float64{0.3, 0.5, 0.2}
	default:
		weights = [3]float64{0.4, 0.4, 0.2}
	}
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return education(i)
		}
		r -= w
	}
	return educationHighSchool
}

func (s *Spawner) skills(rng *rand.Rand, edu education) SkillSet {
	var count int
	var base float64
	switch edu {
	case educationHighSchool:
		count, base = 2+rng.Intn(2), 0.4
	case educationCollege:
		count, base = 3+rng.Intn(2), 0.6
	default:
		count, base = 4+rng.Intn(2), 0.7
	}

	var set SkillSet
	for _, idx := range rng.Perm(NumSkills)[:count] {
		set[idx] = clamp(base+rng.NormFloat64()*0.15, 0.2, 1.0)
	}
	return set
}

// wageMultiplier scales the desired wage by average held skill level.
func wageMultiplier(skills SkillSet) float64 {
	total, n := 0.0, 0
	for _, v := range skills {
		if v > 0 {
			total += v
			n++
		}
	}
	if n == 0 {
		return 0.8
	}
	return 0.8 + 0.4*(total/float64(n))
}

func (s *Spawner) generateName(rng *rand.Rand, id HouseholdID) string {
	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	return fmt.Sprintf("%s %s #%d", first, last, id)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Name pools for procedural generation.
var firstNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Dunmore",
	"Greenvale", "Hearthstone", "Millward", "Copperfield", "Silverdale",
	"Deepwell", "Brightwater", "Redforge", "Windholm", "Goldhaven",
	"Riverstone", "Holloway", "Farrow", "Thatcher", "Caldwell",
	"Harper", "Mercer", "Ward", "Cross",
}
