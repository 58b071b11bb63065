package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipeStatus tracks where a recipe sits in the moderation workflow.
type RecipeStatus string

const (
	RecipeDraft     RecipeStatus = "draft"
	RecipeSubmitted RecipeStatus = "submitted"
	RecipeCompleted RecipeStatus = "completed"
	RecipeRejected  RecipeStatus = "rejected"
	RecipeDeleted   RecipeStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s RecipeStatus) Valid() bool {
	switch s {
	case RecipeDraft, RecipeSubmitted, RecipeCompleted, RecipeRejected, RecipeDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s RecipeStatus) IsTerminal() bool {
	return s == RecipeCompleted || s == RecipeRejected || s == RecipeDeleted
}

type Recipe struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	RecipeName  *string             `gorm:"size:255" json:"recipe_name"`
	Status      RecipeStatus        `gorm:"column:recipe_status;size:20;not null;default:draft;index" json:"recipe_status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	SubmittedAt *time.Time          `json:"submitted_at"`
	CompletedAt *time.Time          `json:"completed_at"`
	CreatorID   uint                `gorm:"not null;index" json:"creator_id"`
	Creator     *User               `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	ModeratorID *uint               `json:"moderator_id"`
	Moderator   *User               `gorm:"foreignKey:ModeratorID" json:"moderator,omitempty"`
	TotalCost   decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"total_cost"`
	Lines       []RecipeIngredient  `gorm:"foreignKey:RecipeID;constraint:OnDelete:CASCADE" json:"ingredients,omitempty"`
}

// Name returns the display name, or an empty string while unnamed.
func (r Recipe) Name() string {
	if r.RecipeName == nil {
		return ""
	}
	return *r.RecipeName
}
