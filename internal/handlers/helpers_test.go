package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"makecoffee/internal/accounts"
	"makecoffee/internal/catalog"
	"makecoffee/internal/db"
	"makecoffee/internal/recipes"
	"makecoffee/models"
)

const testPassword = "barista"

type memoryStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	unseekable int
	deleteErr  error
}

func (m *memoryStore) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	_, seekable := body.(io.ReadSeeker)
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !seekable {
		m.unseekable++
	}
	m.objects[key] = data
	return "http://minio.test/images/" + key, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://minio.test/images/" + key + "?signed=1", nil
}

type testEnv struct {
	db        *gorm.DB
	sm        *scs.SessionManager
	store     *memoryStore
	moderator models.User
	creator   models.User
	other     models.User
	syrup     models.Ingredient
}

func withHandlerEnv(t *testing.T, loginPerMinute int) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	database, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handlers-%s?mode=memory&cache=shared", name)), db.GormConfig())
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	env := &testEnv{
		db:        database,
		sm:        scs.New(),
		store:     &memoryStore{objects: map[string][]byte{}},
		moderator: models.User{Username: "moderator", PasswordHash: string(hash), IsStaff: true},
		creator:   models.User{Username: "creator", PasswordHash: string(hash)},
		other:     models.User{Username: "other", PasswordHash: string(hash)},
		syrup: models.Ingredient{
			IngredientName: "Caramel Syrup",
			Price:          decimal.RequireFromString("2.50"),
			Unit:           "ml",
			Status:         models.IngredientActive,
		},
	}
	for _, user := range []*models.User{&env.moderator, &env.creator, &env.other} {
		if err := database.Create(user).Error; err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}
	if err := database.Create(&env.syrup).Error; err != nil {
		t.Fatalf("failed to create ingredient: %v", err)
	}

	Configure(Dependencies{
		Sessions:       env.sm,
		Catalog:        catalog.NewService(database, env.store, time.Hour),
		Recipes:        recipes.NewService(database),
		Accounts:       accounts.NewService(database),
		LoginPerMinute: loginPerMinute,
		LoginBurst:     1,
	})
	t.Cleanup(func() {
		Configure(Dependencies{})
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return env
}

func newJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func loadSession(t *testing.T, sm *scs.SessionManager, req *http.Request) *http.Request {
	t.Helper()
	ctx, err := sm.Load(req.Context(), "")
	if err != nil {
		t.Fatalf("failed to load session context: %v", err)
	}
	return req.WithContext(ctx)
}

func authenticateRequest(t *testing.T, sm *scs.SessionManager, req *http.Request, userID uint) *http.Request {
	t.Helper()
	req = loadSession(t, sm, req)
	sm.Put(req.Context(), sessionUserIDKey, int(userID))
	sm.Put(req.Context(), sessionAuthenticatedKey, true)
	return req
}

// serve runs req through identity resolution and the handler, the way the
// server chain does.
func serve(handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	Identify(handler).ServeHTTP(w, req)
	return w
}

func (env *testEnv) as(t *testing.T, user models.User, handler http.HandlerFunc, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	req := authenticateRequest(t, env.sm, newJSONRequest(t, method, target, payload), user.ID)
	return serve(handler, req)
}

func (env *testEnv) asGuest(t *testing.T, handler http.HandlerFunc, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	req := loadSession(t, env.sm, newJSONRequest(t, method, target, payload))
	return serve(handler, req)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d (body %s)", want, w.Code, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, want int, contains string) {
	t.Helper()
	expectStatus(t, w, want)
	body := decodeBody[map[string]string](t, w)
	if !strings.Contains(body["error"], contains) {
		t.Fatalf("expected error containing %q, got %q", contains, body["error"])
	}
}
