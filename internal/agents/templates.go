package agents

// FirmTemplate seeds one firm at initialization.
type FirmTemplate struct {
	Name              string
	Good              GoodID
	InitialCapital    float64
	Alpha             float64
	TFP               float64
	InitialWage       float64
	SkillRequirements SkillSet
	InitialVacancies  int
}

func req(pairs ...any) SkillSet {
	var s SkillSet
	for i := 0; i+1 < len(pairs); i += 2 {
		s[pairs[i].(SkillID)] = pairs[i+1].(float64)
	}
	return s
}

// DefaultTemplates is one producer per catalog good.
var DefaultTemplates = []FirmTemplate{
	{"Riverside Bakery", GoodBread, 200000, 0.33, 1.2, 2200, req(SkillManufacturing, 0.4, SkillService, 0.3), 5},
	{"Greenfield Farms", GoodProduce, 180000, 0.33, 1.1, 2000, req(SkillAgriculture, 0.5), 5},
	{"Harbor Provisions", GoodMeat, 220000, 0.33, 1.0, 2300, req(SkillAgriculture, 0.4, SkillManufacturing, 0.3), 5},
	{"Threadline Apparel", GoodClothing, 160000, 0.33, 1.0, 2400, req(SkillManufacturing, 0.5, SkillCreative, 0.3), 5},
	{"Stride Footwear", GoodFootwear, 150000, 0.33, 1.0, 2400, req(SkillManufacturing, 0.5), 5},
	{"Oakwood Residences", GoodRent, 500000, 0.45, 0.8, 2800, req(SkillConstruction, 0.6, SkillBusiness, 0.3), 5},
	{"Metro Transit", GoodTransit, 300000, 0.40, 1.0, 2600, req(SkillTransport, 0.5), 5},
	{"Civic Clinic", GoodMedicine, 350000, 0.33, 0.9, 3500, req(SkillHealthcare, 0.7), 5},
	{"Northgate Academy", GoodTuition, 250000, 0.30, 0.9, 3200, req(SkillEducation, 0.7), 5},
	{"Lantern Theater", GoodEntertainment, 140000, 0.30, 1.0, 2100, req(SkillCreative, 0.5, SkillService, 0.3), 5},
	{"Grid Power", GoodElectricity, 450000, 0.50, 1.1, 3000, req(SkillTechnology, 0.5, SkillConstruction, 0.3), 5},
	{"Hearth Furniture", GoodFurniture, 170000, 0.33, 1.0, 2500, req(SkillManufacturing, 0.5, SkillConstruction, 0.2), 5},
}

// NewFirm instantiates a firm from a template. Half the initial endowment is
// sunk into capital; prices start at catalog base prices.
func NewFirm(id FirmID, t FirmTemplate) *Firm {
	f := &Firm{
		ID:                id,
		Name:              t.Name,
		Good:              t.Good,
		Cash:              t.InitialCapital,
		Capital:           t.InitialCapital * 0.5,
		Alpha:             t.Alpha,
		TFP:               t.TFP,
		Vacancies:         t.InitialVacancies,
		OfferedWage:       t.InitialWage,
		SkillRequirements: t.SkillRequirements,
		Employees:         []HouseholdID{},
	}
	f.Prices = BasePrices()
	return f
}
