package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"makecoffee/internal/access"
	"makecoffee/internal/apperr"
	"makecoffee/internal/catalog"
	applog "makecoffee/internal/log"
	"makecoffee/models"
)

const maxImageUpload = 10 << 20

type ingredientResponse struct {
	ID             uint                    `json:"id"`
	IngredientName string                  `json:"ingredient_name"`
	Description    string                  `json:"description"`
	Price          string                  `json:"price"`
	Unit           string                  `json:"unit"`
	Status         models.IngredientStatus `json:"status"`
	ImageURL       string                  `json:"image_url"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type draftSummary struct {
	ID         uint `json:"id"`
	ItemsCount int  `json:"items_count"`
}

type ingredientCreateRequest struct {
	IngredientName string           `json:"ingredient_name" validate:"required,max=255"`
	Description    string           `json:"description" validate:"max=5000"`
	Price          *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Unit           string           `json:"unit" validate:"required,max=10"`
}

type ingredientUpdateRequest struct {
	IngredientName *string          `json:"ingredient_name" validate:"omitempty,max=255"`
	Description    *string          `json:"description" validate:"omitempty,max=5000"`
	Price          *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Unit           *string          `json:"unit" validate:"omitempty,max=10"`
}

// Ingredients serves the catalog and the add-to-draft action:
//
//	GET, POST          /ingredients/
//	GET, PUT, DELETE   /ingredients/{id}/
//	POST               /ingredients/{id}/ and /ingredients/{id}/image/   (multipart "pic")
//	POST               /ingredients/{id}/draft-recipe/
func Ingredients(w http.ResponseWriter, r *http.Request) {
	if !servicesReady(w) {
		return
	}

	segments := pathSegments(r.URL.Path, "/ingredients")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			listIngredients(w, r)
		case http.MethodPost:
			createIngredient(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	ingredientID, ok := parseID(segments[0])
	if !ok || len(segments) > 2 {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "image":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			attachIngredientImage(w, r, ingredientID)
		case "draft-recipe":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			addIngredientToDraft(w, r, ingredientID)
		default:
			writeJSONError(w, http.StatusNotFound, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		showIngredient(w, r, ingredientID)
	case http.MethodPut:
		updateIngredient(w, r, ingredientID)
	case http.MethodDelete:
		deleteIngredient(w, r, ingredientID)
	case http.MethodPost:
		attachIngredientImage(w, r, ingredientID)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPost)
	}
}

func listIngredients(w http.ResponseWriter, r *http.Request) {
	identity, ok := authorize(w, r, access.IngredientList)
	if !ok {
		return
	}
	ctx := r.Context()

	nameFilter := strings.TrimSpace(r.URL.Query().Get("ingredient_name"))
	results, err := catalogService.List(ctx, nameFilter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]ingredientResponse, 0, len(results))
	for _, ingredient := range results {
		items = append(items, projectIngredient(r, ingredient))
	}

	response := map[string]any{"ingredients": items}
	if nameFilter == "" {
		var summary *draftSummary
		draft, err := recipeService.Draft(ctx, identity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if draft != nil {
			summary = &draftSummary{ID: draft.ID, ItemsCount: len(draft.Lines)}
		}
		response["draft_recipe"] = summary
	}

	applog.Debug(ctx, "ingredients listed", "count", len(items), "filter", nameFilter)
	writeJSON(w, http.StatusOK, response)
}

func showIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	if _, ok := authorize(w, r, access.IngredientShow); !ok {
		return
	}
	ingredient, err := catalogService.Get(r.Context(), ingredientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectIngredient(r, *ingredient))
}

func createIngredient(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, access.IngredientCreate); !ok {
		return
	}

	var payload ingredientCreateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	if payload.Price == nil {
		writeError(w, r, apperr.Validation("price is required"))
		return
	}

	ingredient, err := catalogService.Create(r.Context(), catalog.CreateInput{
		Name:        payload.IngredientName,
		Description: payload.Description,
		Price:       *payload.Price,
		Unit:        payload.Unit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectIngredient(r, *ingredient))
}

func updateIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	if _, ok := authorize(w, r, access.IngredientUpdate); !ok {
		return
	}

	var payload ingredientUpdateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	ingredient, err := catalogService.Update(r.Context(), ingredientID, catalog.UpdateInput{
		Name:        payload.IngredientName,
		Description: payload.Description,
		Price:       payload.Price,
		Unit:        payload.Unit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectIngredient(r, *ingredient))
}

func deleteIngredient(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	if _, ok := authorize(w, r, access.IngredientDelete); !ok {
		return
	}
	if err := catalogService.Delete(r.Context(), ingredientID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func attachIngredientImage(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	if _, ok := authorize(w, r, access.IngredientImage); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUpload)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, r, apperr.Validation("pic must be sent as multipart form data"))
		return
	}
	file, header, err := r.FormFile("pic")
	if err != nil {
		writeError(w, r, apperr.Validation("pic is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, err := io.ReadFull(file, sniff)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			writeError(w, r, apperr.Validation("pic could not be read"))
			return
		}
		contentType = http.DetectContentType(sniff[:n])
		// S3 over plain HTTP needs a seekable body, so rewind rather than wrap.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			writeError(w, r, apperr.Validation("pic could not be read"))
			return
		}
	}

	ingredient, err := catalogService.AttachImage(r.Context(), ingredientID, header.Filename, contentType, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectIngredient(r, *ingredient))
}

func addIngredientToDraft(w http.ResponseWriter, r *http.Request, ingredientID uint) {
	identity, ok := authorize(w, r, access.DraftAdd)
	if !ok {
		return
	}

	result, err := recipeService.AddIngredient(r.Context(), identity, ingredientID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "ingredient added to the existing draft"
	if result.DraftCreated {
		message = "ingredient added to a new draft"
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      message,
		"draft_recipe": projectRecipe(*result.Recipe),
		"line":         projectLine(*result.Line),
	})
}

func projectIngredient(r *http.Request, ingredient models.Ingredient) ingredientResponse {
	return ingredientResponse{
		ID:             ingredient.ID,
		IngredientName: ingredient.IngredientName,
		Description:    ingredient.Description,
		Price:          money(ingredient.Price),
		Unit:           ingredient.Unit,
		Status:         ingredient.Status,
		ImageURL:       catalogService.ImageURL(r.Context(), ingredient),
		CreatedAt:      ingredient.CreatedAt,
		UpdatedAt:      ingredient.UpdatedAt,
	}
}
