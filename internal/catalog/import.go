package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	applog "makecoffee/internal/log"
	"makecoffee/models"
)

// ImportRow is one catalog entry read from an external source.
type ImportRow struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Unit        string
}

// ImportResult counts what ImportRows changed.
type ImportResult struct {
	Created int
	Updated int
}

// ImportRows upserts rows by case-insensitive name. Matching deleted
// ingredients are restored. Each row commits on its own; the first failing
// row stops the import.
func (s *Service) ImportRows(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	var result ImportResult

	for idx, row := range rows {
		if err := validateFields(row.Name, row.Unit, row.Price); err != nil {
			return result, fmt.Errorf("row %d (%s): %w", idx+1, row.Name, err)
		}

		created := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			name := strings.TrimSpace(row.Name)

			var existing models.Ingredient
			err := tx.Where("LOWER(ingredient_name) = ?", strings.ToLower(name)).
				Order("id asc").
				First(&existing).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find ingredient %q: %w", name, err)
			}

			if errors.Is(err, gorm.ErrRecordNotFound) {
				ingredient := models.Ingredient{
					IngredientName: name,
					Description:    strings.TrimSpace(row.Description),
					Price:          row.Price.Round(2),
					Unit:           strings.TrimSpace(row.Unit),
					Status:         models.IngredientActive,
				}
				if err := tx.Create(&ingredient).Error; err != nil {
					return fmt.Errorf("create ingredient %q: %w", name, err)
				}
				created = true
				return nil
			}

			updates := map[string]any{
				"price":  row.Price.Round(2),
				"unit":   strings.TrimSpace(row.Unit),
				"status": models.IngredientActive,
			}
			if description := strings.TrimSpace(row.Description); description != "" {
				updates["description"] = description
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("update ingredient %q: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("row %d (%s): %w", idx+1, row.Name, err)
		}

		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	applog.Info(ctx, "ingredients imported", "created", result.Created, "updated", result.Updated)
	return result, nil
}
