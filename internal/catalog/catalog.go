// Package catalog manages the ingredient catalog and its images.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"makecoffee/internal/apperr"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

// ObjectStore is the image storage collaborator.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service implements catalog operations on top of gorm.
type Service struct {
	db         *gorm.DB
	store      ObjectStore
	presignTTL time.Duration
}

func NewService(db *gorm.DB, store ObjectStore, presignTTL time.Duration) *Service {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &Service{db: db, store: store, presignTTL: presignTTL}
}

// CreateInput holds the fields of a new ingredient.
type CreateInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Unit        string
}

// UpdateInput is a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Unit        *string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns active ingredients ordered by name, optionally restricted to
// names containing nameFilter (case-insensitive).
func (s *Service) List(ctx context.Context, nameFilter string) ([]models.Ingredient, error) {
	query := s.db.WithContext(ctx).
		Where("status = ?", models.IngredientActive).
		Order("ingredient_name asc, id asc")

	if filter := strings.TrimSpace(nameFilter); filter != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(filter)) + "%"
		query = query.Where(`LOWER(ingredient_name) LIKE ? ESCAPE '\'`, pattern)
	}

	var results []models.Ingredient
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	return results, nil
}

// Get returns an active ingredient.
func (s *Service) Get(ctx context.Context, id uint) (*models.Ingredient, error) {
	return findActive(s.db.WithContext(ctx), id, false)
}

func findActive(tx *gorm.DB, id uint, lock bool) (*models.Ingredient, error) {
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ingredient models.Ingredient
	err := tx.Where("id = ? AND status = ?", id, models.IngredientActive).First(&ingredient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("ingredient %d not found", id)
		}
		return nil, fmt.Errorf("load ingredient %d: %w", id, err)
	}
	return &ingredient, nil
}

func validateFields(name, unit string, price decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("ingredient_name is required")
	}
	if strings.TrimSpace(unit) == "" {
		return apperr.Validation("unit is required")
	}
	if price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	return nil
}

// Create adds an active ingredient.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Ingredient, error) {
	if err := validateFields(input.Name, input.Unit, input.Price); err != nil {
		return nil, err
	}
	ingredient := models.Ingredient{
		IngredientName: strings.TrimSpace(input.Name),
		Description:    strings.TrimSpace(input.Description),
		Price:          input.Price.Round(2),
		Unit:           strings.TrimSpace(input.Unit),
		Status:         models.IngredientActive,
	}
	if err := s.db.WithContext(ctx).Create(&ingredient).Error; err != nil {
		return nil, fmt.Errorf("create ingredient: %w", err)
	}
	applog.Info(ctx, "ingredient created", "id", ingredient.ID, "name", ingredient.IngredientName)
	return &ingredient, nil
}

// Update applies a partial update to an active ingredient.
func (s *Service) Update(ctx context.Context, id uint, input UpdateInput) (*models.Ingredient, error) {
	var updated *models.Ingredient
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ingredient, err := findActive(tx, id, true)
		if err != nil {
			return err
		}

		name, unit, price := ingredient.IngredientName, ingredient.Unit, ingredient.Price
		updates := map[string]any{}
		if input.Name != nil {
			name = strings.TrimSpace(*input.Name)
			updates["ingredient_name"] = name
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if input.Price != nil {
			price = input.Price.Round(2)
			updates["price"] = price
		}
		if input.Unit != nil {
			unit = strings.TrimSpace(*input.Unit)
			updates["unit"] = unit
		}
		if err := validateFields(name, unit, price); err != nil {
			return err
		}

		if len(updates) > 0 {
			if err := tx.Model(ingredient).Updates(updates).Error; err != nil {
				return fmt.Errorf("update ingredient %d: %w", id, err)
			}
		}

		reloaded, err := findActive(tx, id, false)
		if err != nil {
			return err
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes an active ingredient. When it has an image the object
// store delete must succeed first; otherwise the ingredient is left untouched.
func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ingredient, err := findActive(tx, id, true)
		if err != nil {
			return err
		}

		if ingredient.ImageKey != "" {
			if err := s.store.Delete(ctx, ingredient.ImageKey); err != nil {
				applog.Error(ctx, "failed to delete ingredient image", "error", err, "id", id, "key", ingredient.ImageKey)
				return apperr.Dependency(err, "failed to delete image from object storage")
			}
		}

		if err := tx.Model(ingredient).Updates(map[string]any{
			"status":    models.IngredientDeleted,
			"image_key": "",
			"image_url": "",
		}).Error; err != nil {
			return fmt.Errorf("soft delete ingredient %d: %w", id, err)
		}

		applog.Info(ctx, "ingredient deleted", "id", id)
		return nil
	})
}

// AttachImage uploads an image for an active ingredient and records its
// reference, replacing any previous image.
func (s *Service) AttachImage(ctx context.Context, id uint, filename, contentType string, body io.Reader) (*models.Ingredient, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperr.Validation("pic must be an image")
	}

	ingredient, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("ingredients/%d/%s%s", id, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	url, err := s.store.Put(ctx, key, contentType, body)
	if err != nil {
		applog.Error(ctx, "failed to upload ingredient image", "error", err, "id", id)
		return nil, apperr.Dependency(err, "failed to upload image to object storage")
	}

	result := s.db.WithContext(ctx).Model(&models.Ingredient{}).
		Where("id = ? AND status = ?", id, models.IngredientActive).
		Updates(map[string]any{"image_key": key, "image_url": url})
	if result.Error != nil || result.RowsAffected == 0 {
		if cleanupErr := s.store.Delete(ctx, key); cleanupErr != nil {
			applog.Warn(ctx, "failed to remove orphaned image", "error", cleanupErr, "key", key)
		}
		if result.Error != nil {
			return nil, fmt.Errorf("record ingredient image %d: %w", id, result.Error)
		}
		return nil, apperr.NotFound("ingredient %d not found", id)
	}

	if previous := ingredient.ImageKey; previous != "" && previous != key {
		if err := s.store.Delete(ctx, previous); err != nil {
			applog.Warn(ctx, "failed to remove replaced image", "error", err, "key", previous)
		}
	}

	return s.Get(ctx, id)
}

// ImageURL returns a presigned URL for the ingredient image, falling back to
// the stored URL when presigning is not possible.
func (s *Service) ImageURL(ctx context.Context, ingredient models.Ingredient) string {
	if ingredient.ImageKey == "" {
		return ingredient.ImageURL
	}
	url, err := s.store.Presign(ctx, ingredient.ImageKey, s.presignTTL)
	if err != nil {
		applog.Debug(ctx, "presign failed, using stored image url", "error", err, "id", ingredient.ID)
		return ingredient.ImageURL
	}
	return url
}
