// Command livelist is the background service behind the followed-live-channels
// UI. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Accepts a Twitch user token from the companion web app over the bridge
//     endpoint, then polls the followed live set on a timer, diffs it, and
//     emits desktop notifications for channels that newly went live.
//   - Keeps an EventSub websocket open for push-based go-live events.
//   - Exposes an HTTP server with the bridge, read surfaces, health probes,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Altoar/twitch-livelist/auth"
	"github.com/Altoar/twitch-livelist/config"
	"github.com/Altoar/twitch-livelist/db"
	"github.com/Altoar/twitch-livelist/eventsub"
	"github.com/Altoar/twitch-livelist/notify"
	"github.com/Altoar/twitch-livelist/server"
	"github.com/Altoar/twitch-livelist/state"
	"github.com/Altoar/twitch-livelist/telemetry"
	"github.com/Altoar/twitch-livelist/twitchapi"
	"github.com/Altoar/twitch-livelist/watch"
)

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
	shutdown, err := telemetry.InitTracing("twitch-livelist", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wiring: store → API client → watcher → scheduler → eventsub
	store := state.NewStore(&db.KV{DB: database})
	client := &twitchapi.Client{
		ClientID:    cfg.TwitchClientID,
		TokenSource: store.AccessToken,
	}
	sched := watch.NewScheduler()
	watcher := &watch.Watcher{
		Client:         client,
		Store:          store,
		Notify:         &notify.Desktop{},
		Board:          watch.NewStatusBoard(),
		DefaultDesktop: cfg.DesktopNotifications,
		DefaultSilent:  cfg.SilentNotifications,
		BadgeScope:     cfg.BadgeScope,
	}
	events := eventsub.NewClient(cfg.EventSubURL, cfg.EventSubMaxReconnects, watcher.OnStreamOnline)
	validator := &auth.Validator{Client: client, Store: store}

	// A destroyed session tears the whole pipeline down.
	teardown := func() {
		sched.StopAll()
		events.Stop()
		watcher.ClearBadge()
	}
	watcher.OnInvalid = teardown
	validator.OnInvalid = teardown

	// Resume the pipeline when a valid session survived a restart.
	if loggedIn, err := store.LoggedIn(ctx); err != nil {
		slog.Error("session check failed", slog.Any("err", err))
	} else if loggedIn {
		slog.Info("existing session found, starting jobs")
		sched.Start(ctx, watch.JobLivePoll, cfg.LivePollInterval, func(jctx context.Context) {
			if err := watcher.PollOnce(jctx); err != nil {
				slog.Warn("live poll failed", slog.Any("err", err))
			}
		})
		auth.ScheduleRevalidation(ctx, sched, validator, cfg.TokenRevalidateInterval)
		events.Start(ctx)
	} else {
		slog.Info("no session, waiting for token hand-off on the bridge")
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
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

	// HTTP server (bridge/read surfaces/health/metrics)
	go func() {
		err := server.Start(ctx, server.Deps{
			Cfg:       cfg,
			DB:        database,
			Store:     store,
			Validator: validator,
			Client:    client,
			Watcher:   watcher,
			Scheduler: sched,
			EventSub:  events,
		}, cfg.HTTPAddr)
		if err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	teardown()
}
