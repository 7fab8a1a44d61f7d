package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category names one of the three stocked inventory catalogs.
type Category string

const (
	CategoryConsumable Category = "Consumable"
	CategoryMedicine   Category = "Medicine"
	CategoryEquipment  Category = "Equipment"
)

var categoryTables = map[Category]string{
	CategoryConsumable: "consumables",
	CategoryMedicine:   "medicines",
	CategoryEquipment:  "equipment",
}

func (c Category) Valid() bool {
	_, ok := categoryTables[c]
	return ok
}

// Table returns the inventory table backing the category.
func (c Category) Table() string {
	return categoryTables[c]
}

// ParseCategory accepts any casing of a category name.
func ParseCategory(s string) (Category, bool) {
	for c := range categoryTables {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// Service is a billable procedure of the clinic's service catalog.
type Service struct {
	ID       uuid.UUID       `db:"id" json:"id"`
	Name     string          `db:"name" json:"name"`
	Category string          `db:"category" json:"category"`
	Fee      decimal.Decimal `db:"fee" json:"fee"`
}

// Item is a stocked medicine, consumable or piece of equipment.
type Item struct {
	ID       uuid.UUID       `db:"id" json:"id"`
	Category Category        `json:"category"`
	Name     string          `db:"name" json:"name"`
	UnitCost decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	Quantity int             `db:"quantity" json:"quantity"`
	Supplier *string         `db:"supplier" json:"supplier,omitempty"`
}

type Dentist struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FirstName  string    `db:"first_name" json:"first_name"`
	MiddleName *string   `db:"middle_name" json:"middle_name,omitempty"`
	LastName   string    `db:"last_name" json:"last_name"`
}

func (d *Dentist) FullName() string {
	parts := []string{d.FirstName}
	if d.MiddleName != nil && *d.MiddleName != "" {
		parts = append(parts, *d.MiddleName)
	}
	parts = append(parts, d.LastName)
	return strings.Join(parts, " ")
}

// ToothCondition is one entry of the charting vocabulary.
type ToothCondition struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}
