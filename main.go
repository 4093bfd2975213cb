// Command chzzk-bot is the entrypoint for the CHZZK chat reply bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Loads the command rule file (missing or invalid files degrade to an
//     empty rule set with a warning).
//   - Optionally connects to Postgres for the chat event sink.
//   - Runs the chat session orchestrator (connect, authenticate, listen,
//     reconnect per policy).
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/chzzk-bot/botlog"
	"github.com/onnwee/chzzk-bot/chat"
	"github.com/onnwee/chzzk-bot/chzzkapi"
	"github.com/onnwee/chzzk-bot/config"
	"github.com/onnwee/chzzk-bot/db"
	"github.com/onnwee/chzzk-bot/server"
	"github.com/onnwee/chzzk-bot/telemetry"
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
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("chzzk-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Command rules. A broken file means an empty rule set, not a dead process.
	rules, err := config.LoadCommands(cfg.CommandsFile)
	if err != nil {
		slog.Warn("running with empty command set", slog.Any("err", err))
	}
	for _, rule := range rules {
		slog.Info("command loaded", slog.String("trigger", rule.Trigger), slog.Int("msg_type_code", rule.MsgTypeCode))
	}

	// Session cookies. The login flow that produces them lives outside this
	// process; expired cookies surface as auth failures on connect.
	cookies := chzzkapi.StaticCookies{
		Aut: os.Getenv("NID_AUT"),
		Ses: os.Getenv("NID_SES"),
	}
	if cookies.Aut == "" || cookies.Ses == "" {
		slog.Warn("NID_AUT/NID_SES not set; platform API calls will be unauthenticated")
	}
	api := &chzzkapi.Client{Cookies: cookies}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional Postgres sink for chat/command events.
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Warn("failed to open db; event sink disabled", slog.Any("err", err))
			database = nil
		} else {
			defer func() {
				if err := database.Close(); err != nil {
					slog.Error("failed to close database", slog.Any("err", err))
				}
			}()
			if err := db.Migrate(ctx, database); err != nil {
				slog.Warn("db migration failed; event sink disabled", slog.Any("err", err))
				database = nil
			}
		}
	}

	var events *botlog.Logger
	if cfg.SaveLog || database != nil {
		logPath := ""
		if cfg.SaveLog {
			logPath = cfg.LogFile
		}
		events, err = botlog.Open(logPath, database)
		if err != nil {
			slog.Warn("failed to open event log", slog.Any("err", err))
		} else {
			defer func() {
				if err := events.Close(); err != nil {
					slog.Error("failed to close event log", slog.Any("err", err))
				}
			}()
		}
	}

	bot := chat.NewBot(cfg, rules, api, events)

	if err := cfg.ValidateChannel(); err != nil {
		slog.Warn("chat bot disabled", slog.Any("err", err))
	} else {
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("bot exited with error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, bot, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}
