package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"makecoffee/models"
)

type ingredientListBody struct {
	Ingredients []ingredientResponse `json:"ingredients"`
	DraftRecipe *draftSummary        `json:"draft_recipe"`
}

func TestGuestListsActiveIngredients(t *testing.T) {
	env := withHandlerEnv(t, 0)

	gone := models.Ingredient{IngredientName: "Hazelnut", Unit: "ml", Status: models.IngredientDeleted}
	if err := env.db.Create(&gone).Error; err != nil {
		t.Fatalf("failed to create ingredient: %v", err)
	}

	w := env.asGuest(t, Ingredients, http.MethodGet, "/ingredients/", nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody[ingredientListBody](t, w)
	if len(body.Ingredients) != 1 || body.Ingredients[0].IngredientName != "Caramel Syrup" {
		t.Fatalf("expected only the active ingredient, got %+v", body.Ingredients)
	}
	if body.Ingredients[0].Price != "2.50" {
		t.Fatalf("expected price 2.50, got %s", body.Ingredients[0].Price)
	}
	if body.DraftRecipe != nil {
		t.Fatalf("expected no draft for a guest, got %+v", body.DraftRecipe)
	}

	w = env.asGuest(t, Ingredients, http.MethodGet, fmt.Sprintf("/ingredients/%d/", gone.ID), nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestIngredientListReportsDraftSummary(t *testing.T) {
	env := withHandlerEnv(t, 0)

	w := env.as(t, env.creator, Ingredients, http.MethodPost, fmt.Sprintf("/ingredients/%d/draft-recipe/", env.syrup.ID), nil)
	expectStatus(t, w, http.StatusCreated)

	w = env.as(t, env.creator, Ingredients, http.MethodGet, "/ingredients/", nil)
	expectStatus(t, w, http.StatusOK)
	body := decodeBody[ingredientListBody](t, w)
	if body.DraftRecipe == nil || body.DraftRecipe.ItemsCount != 1 {
		t.Fatalf("expected draft summary with one item, got %+v", body.DraftRecipe)
	}

	w = env.as(t, env.creator, Ingredients, http.MethodGet, "/ingredients/?ingredient_name=CARAMEL", nil)
	expectStatus(t, w, http.StatusOK)
	raw := decodeBody[map[string]any](t, w)
	if _, ok := raw["draft_recipe"]; ok {
		t.Fatalf("expected filtered listing to omit draft_recipe, got %v", raw)
	}
	if items, _ := raw["ingredients"].([]any); len(items) != 1 {
		t.Fatalf("expected case-insensitive match, got %v", raw["ingredients"])
	}
}

func TestIngredientManagementRequiresModerator(t *testing.T) {
	env := withHandlerEnv(t, 0)
	payload := map[string]any{"ingredient_name": "Oat Milk", "price": "0.04", "unit": "ml"}

	w := env.asGuest(t, Ingredients, http.MethodPost, "/ingredients/", payload)
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.as(t, env.creator, Ingredients, http.MethodPost, "/ingredients/", payload)
	expectStatus(t, w, http.StatusForbidden)

	w = env.as(t, env.moderator, Ingredients, http.MethodPost, "/ingredients/", payload)
	expectStatus(t, w, http.StatusCreated)
	created := decodeBody[ingredientResponse](t, w)
	if created.Status != models.IngredientActive || created.Price != "0.04" {
		t.Fatalf("unexpected created ingredient: %+v", created)
	}

	path := fmt.Sprintf("/ingredients/%d/", created.ID)
	w = env.as(t, env.moderator, Ingredients, http.MethodPut, path, map[string]any{"price": "0.05"})
	expectStatus(t, w, http.StatusOK)
	updated := decodeBody[ingredientResponse](t, w)
	if updated.Price != "0.05" || updated.IngredientName != "Oat Milk" {
		t.Fatalf("expected partial update, got %+v", updated)
	}

	expectStatus(t, env.as(t, env.creator, Ingredients, http.MethodDelete, path, nil), http.StatusForbidden)
	expectStatus(t, env.as(t, env.moderator, Ingredients, http.MethodDelete, path, nil), http.StatusNoContent)
	expectStatus(t, env.as(t, env.moderator, Ingredients, http.MethodDelete, path, nil), http.StatusNotFound)
	expectStatus(t, env.asGuest(t, Ingredients, http.MethodGet, path, nil), http.StatusNotFound)
}

func TestCreateIngredientValidation(t *testing.T) {
	env := withHandlerEnv(t, 0)

	tests := []struct {
		name     string
		payload  map[string]any
		contains string
	}{
		{name: "missing price", payload: map[string]any{"ingredient_name": "Mocha", "unit": "ml"}, contains: "price is required"},
		{name: "negative price", payload: map[string]any{"ingredient_name": "Mocha", "unit": "ml", "price": "-1"}, contains: "price"},
		{name: "missing name", payload: map[string]any{"unit": "ml", "price": "1"}, contains: "ingredient_name is required"},
		{name: "long unit", payload: map[string]any{"ingredient_name": "Mocha", "unit": "millilitres!", "price": "1"}, contains: "unit"},
	}

	for _, tt := range tests {
		w := env.as(t, env.moderator, Ingredients, http.MethodPost, "/ingredients/", tt.payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", tt.name, w.Code, w.Body.String())
		}
		expectError(t, w, http.StatusBadRequest, tt.contains)
	}

	w := env.as(t, env.moderator, Ingredients, http.MethodPost, "/ingredients/", "not an object")
	expectError(t, w, http.StatusBadRequest, "invalid request payload")
}

func TestDeleteIngredientKeepsRecordWhenStorageFails(t *testing.T) {
	env := withHandlerEnv(t, 0)

	if err := env.db.Model(&env.syrup).Update("image_key", "ingredients/1/pic.png").Error; err != nil {
		t.Fatalf("failed to set image key: %v", err)
	}
	env.store.deleteErr = errors.New("minio unreachable")

	w := env.as(t, env.moderator, Ingredients, http.MethodDelete, fmt.Sprintf("/ingredients/%d/", env.syrup.ID), nil)
	expectError(t, w, http.StatusInternalServerError, "object storage")

	var stored models.Ingredient
	if err := env.db.First(&stored, env.syrup.ID).Error; err != nil {
		t.Fatalf("failed to load ingredient: %v", err)
	}
	if stored.Status != models.IngredientActive || stored.ImageKey == "" {
		t.Fatalf("expected ingredient to be untouched, got %+v", stored)
	}
}

func multipartImage(t *testing.T, target, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="pic"; filename="latte.png"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create form part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAttachIngredientImage(t *testing.T) {
	env := withHandlerEnv(t, 0)
	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32))
	target := fmt.Sprintf("/ingredients/%d/image/", env.syrup.ID)

	req := authenticateRequest(t, env.sm, multipartImage(t, target, "", png), env.moderator.ID)
	w := serve(Ingredients, req)
	expectStatus(t, w, http.StatusCreated)
	body := decodeBody[ingredientResponse](t, w)
	if !strings.HasSuffix(body.ImageURL, "?signed=1") {
		t.Fatalf("expected presigned image url, got %q", body.ImageURL)
	}
	if len(env.store.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(env.store.objects))
	}
	for key, data := range env.store.objects {
		if !bytes.Equal(data, png) {
			t.Fatalf("sniffed upload %s lost bytes: got %d, want %d", key, len(data), len(png))
		}
	}
	if env.store.unseekable != 0 {
		t.Fatalf("expected a seekable upload body, got %d unseekable", env.store.unseekable)
	}

	req = authenticateRequest(t, env.sm, multipartImage(t, target, "text/plain", []byte("hello")), env.moderator.ID)
	expectError(t, serve(Ingredients, req), http.StatusBadRequest, "image")

	req = authenticateRequest(t, env.sm, multipartImage(t, target, "image/png", png), env.creator.ID)
	expectStatus(t, serve(Ingredients, req), http.StatusForbidden)

	w = env.as(t, env.moderator, Ingredients, http.MethodPost, target, map[string]any{})
	expectError(t, w, http.StatusBadRequest, "multipart")
}

func TestAddIngredientToDraftRequiresActiveIngredient(t *testing.T) {
	env := withHandlerEnv(t, 0)

	w := env.as(t, env.creator, Ingredients, http.MethodPost, "/ingredients/999/draft-recipe/", nil)
	expectError(t, w, http.StatusNotFound, "not found")

	w = env.as(t, env.creator, Ingredients, http.MethodGet, fmt.Sprintf("/ingredients/%d/draft-recipe/", env.syrup.ID), nil)
	expectStatus(t, w, http.StatusMethodNotAllowed)
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("expected Allow POST, got %q", allow)
	}
}

func TestHandlersReportUnavailableWithoutServices(t *testing.T) {
	env := withHandlerEnv(t, 0)
	Configure(Dependencies{Sessions: env.sm})

	w := env.asGuest(t, Ingredients, http.MethodGet, "/ingredients/", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
}
