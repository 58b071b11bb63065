package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                          "/",
		"/":                         "/",
		"/ingredients/":             "/ingredients",
		"/ingredients/42/":          "/ingredients/:id",
		"/recipes/7/ingredients/3/": "/recipes/:id/ingredients/:id",
		"/users/me/":                "/users/me",
	}
	for raw, want := range cases {
		if got := canonicalPath(raw); got != want {
			t.Fatalf("canonicalPath(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestInstrumentHandlerCountsRequests(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew/:id", "418"))
	req := httptest.NewRequest(http.MethodGet, "/brew/9/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", rec.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/brew/:id", "418"))
	if after != before+1 {
		t.Fatalf("expected request counter to increase by one, got %v -> %v", before, after)
	}
}

func TestWorkflowObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(workflowTransitions.WithLabelValues("submit", "ok"))
	Workflow{}.ObserveTransition("submit", "ok")
	if got := testutil.ToFloat64(workflowTransitions.WithLabelValues("submit", "ok")); got != before+1 {
		t.Fatalf("expected transition counter to increase, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	Workflow{}.ObserveTransition("complete", "ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "makecoffee_recipes_workflow_transitions_total") {
		t.Fatalf("expected workflow counter in exposition output")
	}
}
