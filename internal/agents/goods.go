package agents

import "fmt"

// Category is the consumption category a good belongs to.
type Category uint8

const (
	CategoryFood Category = iota
	CategoryClothing
	CategoryHousing
	CategoryTransportation
	CategoryHealthcare
	CategoryEducation
	CategoryEntertainment
	CategoryUtilities
	CategoryFurniture
	CategoryOther
)

var categoryNames = [...]string{
	"food", "clothing", "housing", "transportation", "healthcare",
	"education", "entertainment", "utilities", "furniture", "other",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// GoodID enumerates the tradeable goods.
type GoodID uint8

const (
	GoodBread GoodID = iota // Necessity staple
	GoodProduce
	GoodMeat
	GoodClothing
	GoodFootwear
	GoodRent
	GoodTransit
	GoodMedicine
	GoodTuition
	GoodEntertainment
	GoodElectricity
	GoodFurniture
)

// NumGoods is the total number of good types.
const NumGoods = 12

// NecessityGood is the good targeted by the default consumption heuristic.
const NecessityGood = GoodBread

// Good describes one catalog entry.
type Good struct {
	ID        GoodID   `json:"id"`
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	Necessity bool     `json:"necessity"`
	BasePrice float64  `json:"base_price"`

	// BasketWeight is the good's share of the price-index basket.
	// Weights across the catalog sum to 1.
	BasketWeight float64 `json:"basket_weight"`
}

// Catalog is the fixed good catalog, indexed by GoodID.
var Catalog = [NumGoods]Good{
	{GoodBread, "bread", "Bread", CategoryFood, true, 20, 0.20},
	{GoodProduce, "produce", "Fresh Produce", CategoryFood, true, 30, 0.10},
	{GoodMeat, "meat", "Meat & Fish", CategoryFood, true, 50, 0.08},
	{GoodClothing, "clothing", "Basic Clothing", CategoryClothing, true, 30, 0.07},
	{GoodFootwear, "footwear", "Footwear", CategoryClothing, true, 50, 0.04},
	{GoodRent, "rent", "Basic Housing", CategoryHousing, true, 800, 0.20},
	{GoodTransit, "transit", "Public Transport", CategoryTransportation, true, 50, 0.07},
	{GoodMedicine, "medicine", "Basic Healthcare", CategoryHealthcare, true, 100, 0.06},
	{GoodTuition, "tuition", "Tuition", CategoryEducation, false, 200, 0.04},
	{GoodEntertainment, "entertainment", "Entertainment", CategoryEntertainment, false, 60, 0.05},
	{GoodElectricity, "electricity", "Electricity", CategoryUtilities, true, 100, 0.06},
	{GoodFurniture, "furniture", "Furniture", CategoryFurniture, false, 300, 0.03},
}

var goodsByKey = func() map[string]GoodID {
	m := make(map[string]GoodID, NumGoods)
	for _, g := range Catalog {
		m[g.Key] = g.ID
	}
	return m
}()

// LookupGood resolves a good key to its GoodID.
func LookupGood(key string) (GoodID, bool) {
	id, ok := goodsByKey[key]
	return id, ok
}

// Valid reports whether g is inside the catalog.
func (g GoodID) Valid() bool { return int(g) < NumGoods }

// Key returns the stable string key of the good.
func (g GoodID) Key() string {
	if !g.Valid() {
		return fmt.Sprintf("good(%d)", uint8(g))
	}
	return Catalog[g].Key
}

func (g GoodID) String() string { return g.Key() }

// Category returns the good's category tag.
func (g GoodID) Category() Category { return Catalog[g].Category }

// IsFood reports whether g counts toward food spending.
func (g GoodID) IsFood() bool { return g.Valid() && Catalog[g].Category == CategoryFood }

// GoodVector is a fixed-size per-good array of float quantities or prices.
type GoodVector [NumGoods]float64

// Sum returns the total over all goods.
func (v GoodVector) Sum() float64 {
	total := 0.0
	for _, x := range v {
		total += x
	}
	return total
}

// ByKey converts the vector into a key-indexed map for serialization.
func (v GoodVector) ByKey() map[string]float64 {
	m := make(map[string]float64, NumGoods)
	for i, x := range v {
		m[Catalog[i].Key] = x
	}
	return m
}

// BasePrices returns the catalog base prices as a vector.
func BasePrices() GoodVector {
	var v GoodVector
	for i, g := range Catalog {
		v[i] = g.BasePrice
	}
	return v
}
