package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IngredientStatus is the lifecycle state of a catalog entry.
type IngredientStatus string

const (
	IngredientActive  IngredientStatus = "active"
	IngredientDeleted IngredientStatus = "deleted"
)

type Ingredient struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	IngredientName string           `gorm:"size:255;not null;index" json:"ingredient_name"`
	Description    string           `gorm:"size:5000" json:"description"`
	Price          decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"price"`
	Unit           string           `gorm:"size:10;not null" json:"unit"`
	Status         IngredientStatus `gorm:"size:10;not null;default:active;index" json:"status"`
	ImageKey       string           `gorm:"size:512" json:"-"`
	ImageURL       string           `gorm:"size:1000" json:"image_url"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Active reports whether the ingredient is visible in the catalog.
func (i Ingredient) Active() bool {
	return i.Status == IngredientActive
}
