package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"makecoffee/internal/handlers"
	applog "makecoffee/internal/log"
	"makecoffee/internal/metrics"
)

func newRouter(withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")
	mux.HandleFunc("/ingredients", handlers.Ingredients)
	mux.HandleFunc("/ingredients/", handlers.Ingredients)
	applog.Debug(context.Background(), "route registered", "path", "/ingredients/")
	mux.HandleFunc("/recipes", handlers.Recipes)
	mux.HandleFunc("/recipes/", handlers.Recipes)
	applog.Debug(context.Background(), "route registered", "path", "/recipes/")
	mux.HandleFunc("/users/", handlers.Users)
	applog.Debug(context.Background(), "route registered", "path", "/users/")
	if withMetrics {
		mux.Handle("/metrics", metrics.Handler())
		applog.Debug(context.Background(), "route registered", "path", "/metrics")
	}
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs each request once it has been served. It runs inside
// identity resolution so lines carry the caller's user id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		remote, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			remote = r.RemoteAddr
		}
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", remote),
		}

		switch {
		case rec.status >= 500:
			applog.Logger().LogAttrs(r.Context(), slog.LevelError, "request", attrs...)
		case rec.status >= 400:
			applog.Logger().LogAttrs(r.Context(), slog.LevelWarn, "request", attrs...)
		default:
			applog.Logger().LogAttrs(r.Context(), slog.LevelInfo, "request", attrs...)
		}
	})
}
