package agents

// SkillID enumerates skill families.
type SkillID uint8

const (
	SkillTechnology SkillID = iota
	SkillBusiness
	SkillCreative
	SkillHealthcare
	SkillEducation
	SkillManufacturing
	SkillService
	SkillConstruction
	SkillTransport
	SkillAgriculture
)

// NumSkills is the number of skill families.
const NumSkills = 10

var skillNames = [NumSkills]string{
	"technology", "business", "creative", "healthcare", "education",
	"manufacturing", "service", "construction", "transport", "agriculture",
}

func (s SkillID) String() string {
	if int(s) < NumSkills {
		return skillNames[s]
	}
	return "unknown"
}

// LookupSkill resolves a skill name.
func LookupSkill(name string) (SkillID, bool) {
	for i, n := range skillNames {
		if n == name {
			return SkillID(i), true
		}
	}
	return 0, false
}

// SkillSet holds a level in [0,1] per skill. As a requirement vector, a zero
// entry means the skill is not required.
type SkillSet [NumSkills]float64

// minRequirement keeps a tiny requirement from dividing by zero.
const minRequirement = 0.01

// SkillFit is the normalized overlap between a skill vector and a
// requirement vector: the mean over required skills of min(1, have/need).
// With no requirements every candidate fits fully.
func SkillFit(have, need SkillSet) float64 {
	total := 0.0
	n := 0
	for i, req := range need {
		if req <= 0 {
			continue
		}
		if req < minRequirement {
			req = minRequirement
		}
		ratio := have[i] / req
		if ratio > 1 {
			ratio = 1
		}
		if ratio < 0 {
			ratio = 0
		}
		total += ratio
		n++
	}
	if n == 0 {
		return 1
	}
	return total / float64(n)
}

// ByName converts the set into a name-indexed map, omitting zero entries.
func (s SkillSet) ByName() map[string]float64 {
	m := make(map[string]float64)
	for i, v := range s {
		if v != 0 {
			m[skillNames[i]] = v
		}
	}
	return m
}
