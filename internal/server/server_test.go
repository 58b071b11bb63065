package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"makecoffee/internal/db"
	"makecoffee/internal/handlers"
	"makecoffee/models"
)

type nullStore struct{}

func (nullStore) Put(context.Context, string, string, io.Reader) (string, error) {
	return "http://minio.test/object", nil
}
func (nullStore) Delete(context.Context, string) error { return nil }
func (nullStore) Presign(context.Context, string, time.Duration) (string, error) {
	return "http://minio.test/object?signed=1", nil
}

func openTestDatabase(t *testing.T, name string) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file:server-"+name+"?mode=memory&cache=shared"), db.GormConfig())
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestNewAppliesSessionDefaults(t *testing.T) {
	database := openTestDatabase(t, "defaults")
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := database.Create(&models.User{Username: "barista", PasswordHash: string(hash)}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	cfg := Config{
		Addr:        ":8080",
		Session:     SessionConfig{CookieSecure: true, Store: memstore.New()},
		Database:    database,
		ObjectStore: nullStore{},
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() {
		handlers.Configure(handlers.Dependencies{})
	})

	if srv.httpServer.Addr != ":8080" {
		t.Fatalf("expected server addr :8080, got %q", srv.httpServer.Addr)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/login/", strings.NewReader(`{"username":"barista","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d (%s)", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie to be set")
	}
	if cookies[0].Name != "session_id" {
		t.Fatalf("expected default session cookie name, got %q", cookies[0].Name)
	}
	if !cookies[0].Secure {
		t.Fatal("expected cookie secure flag to be true")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/users/me/", nil)
	req.AddCookie(cookies[0])
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected session cookie to authenticate, got %d (%s)", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"username":"barista"`) {
		t.Fatalf("expected current user in body, got %s", rr.Body.String())
	}
}

func TestServerRoutesAndMetrics(t *testing.T) {
	database := openTestDatabase(t, "routes")
	ingredient := models.Ingredient{
		IngredientName: "Espresso",
		Price:          decimal.RequireFromString("1.20"),
		Unit:           "shot",
		Status:         models.IngredientActive,
	}
	if err := database.Create(&ingredient).Error; err != nil {
		t.Fatalf("failed to seed ingredient: %v", err)
	}

	srv, err := New(Config{Addr: ":9090", Database: database, Metrics: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		handlers.Configure(handlers.Dependencies{})
	})
	handler := srv.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ingredients", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /ingredients to return 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Espresso") {
		t.Fatalf("expected catalog listing, got %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected guests to be refused, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/recipes/", nil)
	req.SetBasicAuth("nobody", "wrong-password")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected basic auth challenge, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /metrics to return 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("makecoffee_http_requests_total")) {
		t.Fatal("expected request counter to be exported")
	}
}

func TestServerWithoutDatabase(t *testing.T) {
	srv, err := New(Config{Addr: ":9091"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		handlers.Configure(handlers.Dependencies{})
	})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected /healthz to return 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ingredients/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without services, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent when disabled, got %d", rr.Code)
	}
}
