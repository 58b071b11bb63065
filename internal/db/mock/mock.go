package mock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"makecoffee/internal/db"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

// SeedPassword is the password of every seeded account.
const SeedPassword = "barista"

// New returns an in-memory sqlite database seeded with a small coffee catalog,
// one moderator and one creator.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	database, err := gorm.Open(sqlite.Open("file:makecoffee-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}

	if err := seed(ctx, database); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func seed(ctx context.Context, database *gorm.DB) error {
	var existing int64
	if err := database.WithContext(ctx).Model(&models.User{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		applog.Debug(ctx, "mock database already seeded", "users", existing)
		return nil
	}

	applog.Debug(ctx, "seeding mock database")

	password, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	users := []*models.User{
		{
			Username:     "moderator",
			Email:        "moderator@makecoffee.local",
			FirstName:    "Mira",
			PasswordHash: string(password),
			IsStaff:      true,
		},
		{
			Username:     "guest-creator",
			Email:        "creator@makecoffee.local",
			FirstName:    "Cole",
			PasswordHash: string(password),
		},
	}
	for _, user := range users {
		if err := database.WithContext(ctx).Create(user).Error; err != nil {
			return err
		}
	}

	ingredients := []models.Ingredient{
		{
			IngredientName: "Espresso",
			Description:    "Double shot pulled from a medium roast blend.",
			Price:          decimal.RequireFromString("1.20"),
			Unit:           "shot",
		},
		{
			IngredientName: "Whole Milk",
			Description:    "Steamed whole milk with a fine microfoam.",
			Price:          decimal.RequireFromString("0.02"),
			Unit:           "ml",
		},
		{
			IngredientName: "Caramel Syrup",
			Description:    "House caramel syrup cooked with a pinch of sea salt.",
			Price:          decimal.RequireFromString("2.50"),
			Unit:           "ml",
		},
		{
			IngredientName: "Cinnamon",
			Description:    "Ground Ceylon cinnamon dusted over the foam.",
			Price:          decimal.RequireFromString("0.30"),
			Unit:           "g",
		},
	}
	for i := range ingredients {
		ingredients[i].Status = models.IngredientActive
		if err := database.WithContext(ctx).Create(&ingredients[i]).Error; err != nil {
			return err
		}
	}

	name := "Caramel Latte"
	submitted := time.Now().UTC().Add(-time.Hour)
	latte := models.Recipe{
		RecipeName:  &name,
		Status:      models.RecipeSubmitted,
		SubmittedAt: &submitted,
		CreatorID:   users[1].ID,
	}
	if err := database.WithContext(ctx).Create(&latte).Error; err != nil {
		return err
	}

	lines := []models.RecipeIngredient{
		{RecipeID: latte.ID, IngredientID: ingredients[0].ID, Quantity: decimal.NewFromInt(2), Unit: ingredients[0].Unit},
		{RecipeID: latte.ID, IngredientID: ingredients[1].ID, Quantity: decimal.NewFromInt(180), Unit: ingredients[1].Unit},
		{RecipeID: latte.ID, IngredientID: ingredients[2].ID, Quantity: decimal.NewFromInt(15), Unit: ingredients[2].Unit},
	}
	for i := range lines {
		if err := database.WithContext(ctx).Create(&lines[i]).Error; err != nil {
			return err
		}
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
