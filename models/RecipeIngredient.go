package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipeIngredient is one line of a recipe. A recipe holds at most one line per
// ingredient; adding the same ingredient again bumps Quantity.
type RecipeIngredient struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RecipeID     uint            `gorm:"not null;uniqueIndex:idx_recipe_ingredient" json:"recipe_id"`
	IngredientID uint            `gorm:"not null;uniqueIndex:idx_recipe_ingredient" json:"ingredient_id"`
	Quantity     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"quantity"`
	Unit         string          `gorm:"size:10;not null" json:"unit"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Ingredient is a non-owning reference; soft-deleting the ingredient keeps the line.
	Ingredient *Ingredient `gorm:"foreignKey:IngredientID" json:"ingredient,omitempty"`
}

// Cost returns quantity times the current ingredient price. Lines without a
// loaded ingredient cost nothing.
func (l RecipeIngredient) Cost() decimal.Decimal {
	if l.Ingredient == nil {
		return decimal.Zero
	}
	return l.Quantity.Mul(l.Ingredient.Price)
}
