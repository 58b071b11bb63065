package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"makecoffee/internal/config"
	"makecoffee/internal/db"
	"makecoffee/internal/db/mock"
	applog "makecoffee/internal/log"
	"makecoffee/internal/server"
	"makecoffee/internal/session"
	"makecoffee/internal/storage"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	setLogFormatFunc    = applog.SetFormat
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	dialRedisFunc       = session.Dial
	newServerFunc       = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "error", err, "level", cfg.Logging.Level)
		return 1
	}
	if err := setLogFormatFunc(cfg.Logging.Format); err != nil {
		applog.Error(ctx, "invalid log format", "error", err, "format", cfg.Logging.Format)
		return 1
	}

	applog.Debug(ctx, "configuration loaded",
		"addr", cfg.Server.Addr,
		"mockDatabase", cfg.Database.UseMock,
		"redis", cfg.Redis.URL != "",
		"storage", cfg.Storage.Enabled(),
		"metrics", cfg.Metrics.Enabled,
	)

	var database *gorm.DB
	if cfg.Database.UseMock {
		applog.Info(ctx, "using mock database")
		database, err = newMockDatabaseFunc(ctx)
	} else {
		database, err = configureDatabase(cfg.Database)
	}
	if err != nil {
		applog.Error(ctx, "failed to configure database", "error", err)
		return 1
	}

	serverCfg := server.Config{
		Addr: cfg.Server.Addr,
		Session: server.SessionConfig{
			Lifetime:     cfg.Auth.Session.Lifetime,
			CookieName:   cfg.Auth.Session.CookieName,
			CookieDomain: cfg.Auth.Session.CookieDomain,
			CookieSecure: cfg.Auth.Session.CookieSecure,
		},
		Database:   database,
		PresignTTL: cfg.Storage.PresignTTL,
		LoginRate: server.RateConfig{
			PerMinute: cfg.Auth.LoginRate.PerMinute,
			Burst:     cfg.Auth.LoginRate.Burst,
		},
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Metrics:           cfg.Metrics.Enabled,
	}

	if cfg.Redis.URL != "" {
		client, err := dialRedisFunc(ctx, cfg.Redis.URL)
		if err != nil {
			applog.Error(ctx, "failed to connect to redis", "error", err)
			return 1
		}
		defer closeRedis(ctx, client)
		serverCfg.Session.Store = session.NewRedisStore(client, cfg.Redis.KeyPrefix)
		applog.Info(ctx, "sessions stored in redis", "prefix", cfg.Redis.KeyPrefix)
	}

	if cfg.Storage.Enabled() {
		serverCfg.ObjectStore = storage.New(cfg.Storage)
		applog.Info(ctx, "object storage configured", "bucket", cfg.Storage.Bucket, "endpoint", cfg.Storage.Endpoint)
	}

	srv, err := newServerFunc(serverCfg)
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	shutdown, stop := subscribeShutdownSig()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-shutdown:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "context cancelled, shutting down http server")
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Error(ctx, "server encountered an error", "error", err)
		return 1
	}
	applog.Info(ctx, "server stopped")
	return 0
}

func closeRedis(ctx context.Context, client *redis.Client) {
	if err := client.Close(); err != nil {
		applog.Warn(ctx, "failed to close redis client", "error", err)
	}
}
