// Command livechat-tender is the service entrypoint. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs migrations.
//   - Connects to NATS when NATS_URL is set.
//   - Starts one chat recorder per configured channel or live video.
//   - Exposes the HTTP API (/healthz, /readyz, /status, /metrics, archive,
//     SSE stream and admin endpoints).
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/livechat-tender/chat"
	"github.com/onnwee/livechat-tender/config"
	"github.com/onnwee/livechat-tender/db"
	"github.com/onnwee/livechat-tender/events"
	"github.com/onnwee/livechat-tender/livechat"
	"github.com/onnwee/livechat-tender/server"
	"github.com/onnwee/livechat-tender/telemetry"
	"github.com/onnwee/livechat-tender/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

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

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Warn("starting without watch targets; add some via POST /admin/watch", slog.Any("err", err))
	}

	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livechat-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

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

	// Versioned migrations first; the idempotent embedded statements cover
	// databases whose migration state cannot be used.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}
	store := db.NewStore(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(server.DefaultHubBuffer)
	recCfg := chat.Config{
		Store:         store,
		Broadcaster:   hub,
		Client:        livechat.NewRateLimitedClient(livechat.NewHTTPClient(cfg.RequestTimeout), cfg.OutboundRPS, cfg.OutboundBurst),
		BaseURL:       cfg.BaseURL,
		Interval:      cfg.PollInterval,
		RetryInterval: cfg.RetryInterval,
	}

	if cfg.NatsURL != "" {
		pub, err := events.NewPublisher(cfg.NatsURL, cfg.NatsToken, cfg.NatsSubjectPrefix, slog.Default())
		if err != nil {
			slog.Error("nats connect failed; continuing without event publishing", slog.Any("err", err))
		} else {
			defer pub.Close()
			recCfg.Publisher = pub
		}
	} else {
		slog.Info("NATS_URL not set; event publishing disabled")
	}

	if cfg.YTDataAPIKey != "" {
		lookup, err := youtubeapi.NewLookup(ctx, cfg.YTDataAPIKey)
		if err != nil {
			slog.Warn("youtube data api lookup disabled", slog.Any("err", err))
		} else {
			recCfg.Lookup = lookup
		}
	}

	manager := chat.NewManager(ctx, recCfg)
	for _, id := range cfg.ChannelIDs {
		if err := manager.Add(chat.Target{ChannelID: id}); err != nil {
			slog.Warn("skipping channel target", slog.String("channel_id", id), slog.Any("err", err))
		}
	}
	for _, id := range cfg.LiveIDs {
		if err := manager.Add(chat.Target{LiveID: id}); err != nil {
			slog.Warn("skipping live target", slog.String("live_id", id), slog.Any("err", err))
		}
	}
	slog.Info("recorders started", slog.Int("channels", len(cfg.ChannelIDs)), slog.Int("live_videos", len(cfg.LiveIDs)))

	router := server.NewRouter(ctx, server.Deps{
		DB:         database,
		Archive:    store,
		Watcher:    manager,
		Hub:        hub,
		AdminToken: cfg.AdminToken,
	})
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, router); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	manager.Wait()
}
