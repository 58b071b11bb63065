// Package recipes implements the recipe aggregate: drafts, their lines, and
// the moderation workflow draft -> submitted -> completed/rejected.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"makecoffee/internal/access"
	"makecoffee/internal/apperr"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

// Moderation actions accepted by Moderate.
const (
	ActionComplete = "complete"
	ActionReject   = "reject"
)

// Recorder observes workflow transitions.
type Recorder interface {
	ObserveTransition(action, outcome string)
}

type Service struct {
	db       *gorm.DB
	now      func() time.Time
	recorder Recorder
}

type Option func(*Service)

// WithClock overrides the time source used for workflow timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) observe(action string, err error) {
	if s.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	s.recorder.ObserveTransition(action, outcome)
}

// AddResult describes the outcome of adding an ingredient to a draft.
type AddResult struct {
	Recipe       *models.Recipe
	Line         *models.RecipeIngredient
	DraftCreated bool
}

// AddIngredient puts one unit of an active ingredient into the caller's
// draft, creating the draft on first use.
func (s *Service) AddIngredient(ctx context.Context, actor access.Identity, ingredientID uint) (result *AddResult, err error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication credentials were not provided")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ingredient models.Ingredient
		if err := tx.Where("id = ? AND status = ?", ingredientID, models.IngredientActive).First(&ingredient).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("ingredient %d not found", ingredientID)
			}
			return fmt.Errorf("load ingredient %d: %w", ingredientID, err)
		}

		draft, created, err := s.getOrCreateDraft(tx, actor.UserID)
		if err != nil {
			return err
		}

		line, err := s.incrementLine(tx, draft.ID, ingredient)
		if err != nil {
			return err
		}
		line.Ingredient = &ingredient

		result = &AddResult{Recipe: draft, Line: line, DraftCreated: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.DraftCreated {
		s.observe("create_draft", nil)
		applog.Info(ctx, "draft recipe created", "recipe_id", result.Recipe.ID, "creator_id", actor.UserID)
	}
	return result, nil
}

// getOrCreateDraft relies on the one-draft-per-creator partial unique index:
// a concurrent insert loses the conflict and re-reads the winner's draft.
func (s *Service) getOrCreateDraft(tx *gorm.DB, creatorID uint) (*models.Recipe, bool, error) {
	draft, err := findDraft(tx, creatorID)
	if err != nil {
		return nil, false, err
	}
	if draft != nil {
		return draft, false, nil
	}

	candidate := models.Recipe{CreatorID: creatorID, Status: models.RecipeDraft}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create draft: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return &candidate, true, nil
	}

	draft, err = findDraft(tx, creatorID)
	if err != nil {
		return nil, false, err
	}
	if draft == nil {
		return nil, false, fmt.Errorf("draft for creator %d vanished after conflict", creatorID)
	}
	return draft, false, nil
}

func findDraft(tx *gorm.DB, creatorID uint) (*models.Recipe, error) {
	var draft models.Recipe
	err := tx.Where("creator_id = ? AND recipe_status = ?", creatorID, models.RecipeDraft).First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return &draft, nil
}

func (s *Service) incrementLine(tx *gorm.DB, recipeID uint, ingredient models.Ingredient) (*models.RecipeIngredient, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res := tx.Model(&models.RecipeIngredient{}).
			Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredient.ID).
			Updates(map[string]any{
				"quantity":   gorm.Expr("quantity + ?", 1),
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return nil, fmt.Errorf("increment line: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			line := models.RecipeIngredient{
				RecipeID:     recipeID,
				IngredientID: ingredient.ID,
				Quantity:     decimal.NewFromInt(1),
				Unit:         ingredient.Unit,
			}
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&line)
			if ins.Error != nil {
				return nil, fmt.Errorf("create line: %w", ins.Error)
			}
			if ins.RowsAffected == 0 {
				// lost the insert race; the line exists now, so increment it
				continue
			}
		}

		var line models.RecipeIngredient
		if err := tx.Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredient.ID).First(&line).Error; err != nil {
			return nil, fmt.Errorf("reload line: %w", err)
		}
		return &line, nil
	}
	return nil, fmt.Errorf("line for ingredient %d could not be written", ingredient.ID)
}

// Draft returns the caller's current draft with its lines, or nil.
func (s *Service) Draft(ctx context.Context, actor access.Identity) (*models.Recipe, error) {
	if !actor.Authenticated() {
		return nil, nil
	}
	var draft models.Recipe
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Lines.Ingredient").
		Where("creator_id = ? AND recipe_status = ?", actor.UserID, models.RecipeDraft).
		First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	return &draft, nil
}

// ListFilter narrows List. From and To bound the creation time inclusively.
type ListFilter struct {
	Status models.RecipeStatus
	From   *time.Time
	To     *time.Time
}

// List returns formed recipes, newest first. Drafts and deleted recipes are
// never listed. Moderators see every creator's recipes.
func (s *Service) List(ctx context.Context, actor access.Identity, filter ListFilter) ([]models.Recipe, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthorized("authentication credentials were not provided")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}

	query := s.db.WithContext(ctx).
		Preload("Creator").
		Preload("Moderator").
		Where("recipe_status NOT IN ?", []models.RecipeStatus{models.RecipeDraft, models.RecipeDeleted}).
		Order("created_at desc, id desc")

	if !access.IsModerator(actor) {
		query = query.Where("creator_id = ?", actor.UserID)
	}
	if filter.Status != "" {
		query = query.Where("recipe_status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", filter.To.UTC())
	}

	var results []models.Recipe
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return results, nil
}

// Get returns a recipe with its lines. Only the creator and moderators may
// read it.
func (s *Service) Get(ctx context.Context, actor access.Identity, id uint) (*models.Recipe, error) {
	var recipe models.Recipe
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Lines.Ingredient").
		Preload("Creator").
		Preload("Moderator").
		First(&recipe, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("recipe %d not found", id)
		}
		return nil, fmt.Errorf("load recipe %d: %w", id, err)
	}
	if recipe.Status == models.RecipeDeleted {
		return nil, apperr.NotFound("recipe %d not found", id)
	}
	if recipe.CreatorID != actor.UserID && !access.IsModerator(actor) {
		return nil, apperr.Forbidden("you do not have permission to view this recipe")
	}
	return &recipe, nil
}

// lockRecipe loads a non-deleted recipe with a row lock held for the rest of
// the transaction.
func lockRecipe(tx *gorm.DB, id uint) (*models.Recipe, error) {
	var recipe models.Recipe
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&recipe, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("recipe %d not found", id)
		}
		return nil, fmt.Errorf("load recipe %d: %w", id, err)
	}
	if recipe.Status == models.RecipeDeleted {
		return nil, apperr.NotFound("recipe %d not found", id)
	}
	return &recipe, nil
}

func requireOwner(actor access.Identity, recipe *models.Recipe) error {
	if recipe.CreatorID != actor.UserID {
		return apperr.Forbidden("only the creator may change this recipe")
	}
	return nil
}

// Rename sets the name of a draft. A blank name clears it.
func (s *Service) Rename(ctx context.Context, actor access.Identity, id uint, name string) (*models.Recipe, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipe, err := lockRecipe(tx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, recipe); err != nil {
			return err
		}
		if recipe.Status != models.RecipeDraft {
			return apperr.Validation("only draft recipes can be renamed")
		}

		var value any
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			value = trimmed
		}
		return tx.Model(recipe).Update("recipe_name", value).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

// Submit moves the caller's named draft to submitted.
func (s *Service) Submit(ctx context.Context, actor access.Identity, id uint) (recipe *models.Recipe, err error) {
	defer func() { s.observe("submit", err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockRecipe(tx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, current); err != nil {
			return err
		}
		if current.Status != models.RecipeDraft {
			return apperr.Validation("only draft recipes can be submitted")
		}
		if strings.TrimSpace(current.Name()) == "" {
			return apperr.Validation("recipe_name is required before submitting")
		}

		return tx.Model(current).Updates(map[string]any{
			"recipe_status": models.RecipeSubmitted,
			"submitted_at":  s.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	applog.Info(ctx, "recipe submitted", "recipe_id", id, "creator_id", actor.UserID)
	return s.Get(ctx, actor, id)
}

// Moderate completes or rejects a submitted recipe. Completion stores the
// total cost of the lines read under the recipe row lock.
func (s *Service) Moderate(ctx context.Context, actor access.Identity, id uint, action string) (recipe *models.Recipe, err error) {
	action = strings.ToLower(strings.TrimSpace(action))
	defer func() {
		name := action
		if name != ActionComplete && name != ActionReject {
			name = "moderate"
		}
		s.observe(name, err)
	}()

	if !access.IsModerator(actor) {
		if !actor.Authenticated() {
			return nil, apperr.Unauthorized("authentication credentials were not provided")
		}
		return nil, apperr.Forbidden("only moderators may complete or reject recipes")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockRecipe(tx, id)
		if err != nil {
			return err
		}
		if action != ActionComplete && action != ActionReject {
			return apperr.Validation("status_action must be %q or %q", ActionComplete, ActionReject)
		}
		if current.SubmittedAt == nil {
			return apperr.Validation("recipe has not been submitted")
		}
		if current.Status != models.RecipeSubmitted {
			return apperr.Validation("recipe is already %s", current.Status)
		}

		updates := map[string]any{
			"completed_at": s.now(),
			"moderator_id": actor.UserID,
		}
		if action == ActionReject {
			updates["recipe_status"] = models.RecipeRejected
			return tx.Model(current).Updates(updates).Error
		}

		var lines []models.RecipeIngredient
		if err := tx.Preload("Ingredient").Where("recipe_id = ?", current.ID).Find(&lines).Error; err != nil {
			return fmt.Errorf("load lines of recipe %d: %w", current.ID, err)
		}
		updates["recipe_status"] = models.RecipeCompleted
		updates["total_cost"] = decimal.NewNullDecimal(TotalCost(lines))
		return tx.Model(current).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	applog.Info(ctx, "recipe moderated", "recipe_id", id, "action", action, "moderator_id", actor.UserID)
	return s.Get(ctx, actor, id)
}

// Delete soft-deletes the caller's draft and drops its lines.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id uint) (err error) {
	defer func() { s.observe("delete", err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockRecipe(tx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(actor, current); err != nil {
			return err
		}
		if current.Status != models.RecipeDraft {
			return apperr.Validation("only draft recipes can be deleted")
		}

		if err := tx.Where("recipe_id = ?", current.ID).Delete(&models.RecipeIngredient{}).Error; err != nil {
			return fmt.Errorf("delete lines of recipe %d: %w", current.ID, err)
		}
		return tx.Model(current).Update("recipe_status", models.RecipeDeleted).Error
	})
	if err != nil {
		return err
	}

	applog.Info(ctx, "draft recipe deleted", "recipe_id", id, "creator_id", actor.UserID)
	return nil
}

// lockEditable locks a recipe whose lines actor may change.
func lockEditable(tx *gorm.DB, actor access.Identity, recipeID uint) (*models.Recipe, error) {
	recipe, err := lockRecipe(tx, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe.CreatorID != actor.UserID && !access.IsModerator(actor) {
		return nil, apperr.Forbidden("you do not have permission to change this recipe")
	}
	if recipe.Status.IsTerminal() {
		return nil, apperr.Validation("lines of a %s recipe cannot be changed", recipe.Status)
	}
	return recipe, nil
}

// UpdateLine sets the quantity (and optionally the unit) of one line.
func (s *Service) UpdateLine(ctx context.Context, actor access.Identity, recipeID, ingredientID uint, quantity decimal.Decimal, unit string) (*models.RecipeIngredient, error) {
	// Quantities are stored with two decimals; check what will be stored.
	quantity = quantity.Round(2)
	if !quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}

	var line models.RecipeIngredient
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEditable(tx, actor, recipeID); err != nil {
			return err
		}

		updates := map[string]any{"quantity": quantity}
		if trimmed := strings.TrimSpace(unit); trimmed != "" {
			updates["unit"] = trimmed
		}
		res := tx.Model(&models.RecipeIngredient{}).
			Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update line: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("recipe %d has no line for ingredient %d", recipeID, ingredientID)
		}

		return tx.Preload("Ingredient").
			Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).
			First(&line).Error
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// DeleteLine removes one line; the recipe itself stays.
func (s *Service) DeleteLine(ctx context.Context, actor access.Identity, recipeID, ingredientID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEditable(tx, actor, recipeID); err != nil {
			return err
		}

		res := tx.Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).Delete(&models.RecipeIngredient{})
		if res.Error != nil {
			return fmt.Errorf("delete line: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("recipe %d has no line for ingredient %d", recipeID, ingredientID)
		}
		return nil
	})
}

// TotalCost sums quantity times current price over lines, rounded to cents.
func TotalCost(lines []models.RecipeIngredient) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Cost())
	}
	return total.Round(2)
}
