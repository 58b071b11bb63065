package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"makecoffee/internal/access"
	"makecoffee/internal/apperr"
	"makecoffee/internal/recipes"
	"makecoffee/models"
)

type recipeResponse struct {
	ID                uint                `json:"id"`
	RecipeName        *string             `json:"recipe_name"`
	Status            models.RecipeStatus `json:"recipe_status"`
	CreatedAt         time.Time           `json:"created_at"`
	SubmittedAt       *time.Time          `json:"submitted_at"`
	CompletedAt       *time.Time          `json:"completed_at"`
	CreatorID         uint                `json:"creator"`
	CreatorUsername   string              `json:"creator_username,omitempty"`
	ModeratorID       *uint               `json:"moderator"`
	ModeratorUsername string              `json:"moderator_username,omitempty"`
	TotalCost         *string             `json:"total_cost"`
}

type recipeDetailResponse struct {
	recipeResponse
	Ingredients []lineResponse `json:"ingredients"`
}

type lineResponse struct {
	ID             uint   `json:"id"`
	RecipeID       uint   `json:"recipe"`
	IngredientID   uint   `json:"ingredient"`
	IngredientName string `json:"ingredient_name,omitempty"`
	Quantity       string `json:"quantity"`
	Unit           string `json:"unit"`
}

type recipeUpdateRequest struct {
	RecipeName *string `json:"recipe_name" validate:"omitempty,max=255"`
}

type moderateRequest struct {
	StatusAction string `json:"status_action"`
}

type lineUpdateRequest struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	Unit     string           `json:"unit" validate:"omitempty,max=10"`
}

const dateLayout = "2006-01-02"

// Recipes serves recipe reads, the status workflow and line mutation:
//
//	GET                /recipes/?status=&start_date=&end_date=
//	GET, DELETE        /recipes/{id}/
//	PUT                /recipes/{id}/update/
//	PUT                /recipes/{id}/submit/
//	PUT                /recipes/{id}/reject-or-complete/
//	PUT, DELETE        /recipes/{id}/ingredients/{ingredient_id}/
func Recipes(w http.ResponseWriter, r *http.Request) {
	if !servicesReady(w) {
		return
	}

	segments := pathSegments(r.URL.Path, "/recipes")
	if len(segments) == 0 {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		listRecipes(w, r)
		return
	}

	recipeID, ok := parseID(segments[0])
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch len(segments) {
	case 1:
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			showRecipe(w, r, recipeID)
		case http.MethodDelete:
			deleteRecipe(w, r, recipeID)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
		return
	case 2:
		if r.Method != http.MethodPut {
			methodNotAllowed(w, http.MethodPut)
			return
		}
		switch segments[1] {
		case "update":
			renameRecipe(w, r, recipeID)
		case "submit":
			submitRecipe(w, r, recipeID)
		case "reject-or-complete":
			moderateRecipe(w, r, recipeID)
		default:
			writeJSONError(w, http.StatusNotFound, "not found")
		}
		return
	case 3:
		ingredientID, ok := parseID(segments[2])
		if segments[1] != "ingredients" || !ok {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		switch r.Method {
		case http.MethodPut:
			updateLine(w, r, recipeID, ingredientID)
		case http.MethodDelete:
			deleteLine(w, r, recipeID, ingredientID)
		default:
			methodNotAllowed(w, http.MethodPut, http.MethodDelete)
		}
		return
	}

	writeJSONError(w, http.StatusNotFound, "not found")
}

func listRecipes(w http.ResponseWriter, r *http.Request) {
	identity, ok := authorize(w, r, access.RecipeList)
	if !ok {
		return
	}

	filter, err := parseRecipeFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results, err := recipeService.List(r.Context(), identity, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]recipeResponse, 0, len(results))
	for _, recipe := range results {
		items = append(items, projectRecipe(recipe))
	}
	writeJSON(w, http.StatusOK, items)
}

// parseRecipeFilter accepts dates as YYYY-MM-DD or RFC 3339. A bare end date
// covers that whole day.
func parseRecipeFilter(r *http.Request) (recipes.ListFilter, error) {
	query := r.URL.Query()
	filter := recipes.ListFilter{Status: models.RecipeStatus(strings.ToLower(strings.TrimSpace(query.Get("status"))))}

	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		from, _, err := parseDate(raw)
		if err != nil {
			return filter, apperr.Validation("start_date must be YYYY-MM-DD or RFC 3339")
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		to, dateOnly, err := parseDate(raw)
		if err != nil {
			return filter, apperr.Validation("end_date must be YYYY-MM-DD or RFC 3339")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = &to
	}
	return filter, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

func showRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	identity, ok := authorize(w, r, access.RecipeShow)
	if !ok {
		return
	}
	recipe, err := recipeService.Get(r.Context(), identity, recipeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeDetail(*recipe))
}

func deleteRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	identity, ok := authorize(w, r, access.RecipeDelete)
	if !ok {
		return
	}
	if err := recipeService.Delete(r.Context(), identity, recipeID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func renameRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	identity, ok := authorize(w, r, access.RecipeUpdate)
	if !ok {
		return
	}

	var payload recipeUpdateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	name := ""
	if payload.RecipeName != nil {
		name = *payload.RecipeName
	}

	recipe, err := recipeService.Rename(r.Context(), identity, recipeID, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeDetail(*recipe))
}

func submitRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	identity, ok := authorize(w, r, access.RecipeSubmit)
	if !ok {
		return
	}
	recipe, err := recipeService.Submit(r.Context(), identity, recipeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeDetail(*recipe))
}

func moderateRecipe(w http.ResponseWriter, r *http.Request, recipeID uint) {
	identity, ok := authorize(w, r, access.RecipeModerate)
	if !ok {
		return
	}

	var payload moderateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	recipe, err := recipeService.Moderate(r.Context(), identity, recipeID, payload.StatusAction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectRecipeDetail(*recipe))
}

func updateLine(w http.ResponseWriter, r *http.Request, recipeID, ingredientID uint) {
	identity, ok := authorize(w, r, access.LineUpdate)
	if !ok {
		return
	}

	var payload lineUpdateRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	line, err := recipeService.UpdateLine(r.Context(), identity, recipeID, ingredientID, *payload.Quantity, payload.Unit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectLine(*line))
}

func deleteLine(w http.ResponseWriter, r *http.Request, recipeID, ingredientID uint) {
	identity, ok := authorize(w, r, access.LineDelete)
	if !ok {
		return
	}
	if err := recipeService.DeleteLine(r.Context(), identity, recipeID, ingredientID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func projectRecipe(recipe models.Recipe) recipeResponse {
	response := recipeResponse{
		ID:          recipe.ID,
		RecipeName:  recipe.RecipeName,
		Status:      recipe.Status,
		CreatedAt:   recipe.CreatedAt,
		SubmittedAt: recipe.SubmittedAt,
		CompletedAt: recipe.CompletedAt,
		CreatorID:   recipe.CreatorID,
		ModeratorID: recipe.ModeratorID,
	}
	if recipe.Creator != nil {
		response.CreatorUsername = recipe.Creator.Username
	}
	if recipe.Moderator != nil {
		response.ModeratorUsername = recipe.Moderator.Username
	}
	if recipe.TotalCost.Valid {
		total := money(recipe.TotalCost.Decimal)
		response.TotalCost = &total
	}
	return response
}

func projectRecipeDetail(recipe models.Recipe) recipeDetailResponse {
	lines := make([]lineResponse, 0, len(recipe.Lines))
	for _, line := range recipe.Lines {
		lines = append(lines, projectLine(line))
	}
	return recipeDetailResponse{recipeResponse: projectRecipe(recipe), Ingredients: lines}
}

func projectLine(line models.RecipeIngredient) lineResponse {
	response := lineResponse{
		ID:           line.ID,
		RecipeID:     line.RecipeID,
		IngredientID: line.IngredientID,
		Quantity:     money(line.Quantity),
		Unit:         line.Unit,
	}
	if line.Ingredient != nil {
		response.IngredientName = line.Ingredient.IngredientName
	}
	return response
}
