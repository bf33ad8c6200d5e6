// Command chat-relay is the main entrypoint for the live chat relay service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the YouTube chat source and the polling engine around the stored
//     OAuth credential.
//   - Starts the background token refresher.
//   - Exposes the HTTP server: OAuth handshake, /ws and /events subscriber
//     endpoints, admin enable/disable, /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/overlaykit/chat-relay/config"
	"github.com/overlaykit/chat-relay/db"
	"github.com/overlaykit/chat-relay/oauth"
	"github.com/overlaykit/chat-relay/relay"
	"github.com/overlaykit/chat-relay/server"
	"github.com/overlaykit/chat-relay/telemetry"
	"github.com/overlaykit/chat-relay/youtubeapi"
)

// dbTokenStore adapts the db package's token helpers to the youtubeapi
// TokenStore interface.
type dbTokenStore struct {
	db *sql.DB
}

func (s dbTokenStore) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	return db.UpsertOAuthToken(ctx, s.db, provider, access, refresh, expiry, scope)
}

func (s dbTokenStore) GetOAuthToken(ctx context.Context, provider string) (string, string, time.Time, string, error) {
	return db.GetOAuthToken(ctx, s.db, provider)
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	migrationCtx, migrationCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrationCtx, database); err != nil {
		migrationCancel()
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	migrationCancel()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chat source + polling engine around the stored credential (if any).
	yt := youtubeapi.New(cfg, dbTokenStore{db: database})

	cred := relay.Credential{}
	if stored, err := yt.LoadCredential(ctx); err != nil {
		slog.Warn("stored credential load failed", slog.Any("err", err))
	} else if stored != nil {
		cred = *stored
		slog.Info("stored credential loaded", slog.Time("expiry", cred.Expiry))
	}

	fanout := relay.NewFanout()
	session := relay.NewSession(&cred)
	engine := relay.NewScheduler(ctx, relay.Config{
		MinInterval:        cfg.PollMinInterval,
		BaseInterval:       cfg.PollBaseInterval,
		BackoffBase:        cfg.BackoffBase,
		BackoffMax:         cfg.BackoffMax,
		ErrorRetryInterval: cfg.ErrorRetryInterval,
		IdentityTTL:        cfg.IdentityTTL,
	}, yt, fanout, session)

	// Persist credentials refreshed during poll cycles.
	engine.OnRefresh = func(c relay.Credential) {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.UpsertOAuthToken(pctx, database, youtubeapi.Provider, c.AccessToken, c.RefreshToken, c.Expiry, cfg.YTScopes); err != nil {
			slog.Warn("refreshed credential persist failed", slog.Any("err", err))
		}
	}

	// Background token refresher keeps the stored token warm even while
	// polling is disabled.
	oauth.StartRefresher(ctx, database, youtubeapi.Provider, 10*time.Minute, 20*time.Minute, yt.RefreshFunc())

	// Resume polling if configured, or if an admin had enabled it before the
	// last restart.
	autoEnable := cfg.AutoEnable
	if v, err := db.GetKV(ctx, database, "relay_enabled"); err == nil && v == "1" {
		autoEnable = true
	}
	if autoEnable {
		if err := cfg.ValidatePollReady(); err != nil {
			slog.Warn("auto-enable skipped", slog.Any("err", err))
		} else {
			engine.Enable()
		}
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, database, cfg, engine, yt); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	engine.Disable()
}
