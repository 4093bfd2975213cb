// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Missing or invalid optional values degrade to defaults with a logged warning; the
// process never aborts on configuration problems alone.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReconnectMode controls what happens when the chat transport closes.
type ReconnectMode int

const (
	// ReconnectDisabled makes the first closure terminal.
	ReconnectDisabled ReconnectMode = iota
	// ReconnectUnlimited reconnects on every closure without bound.
	ReconnectUnlimited
	// ReconnectBounded reconnects up to Config.ReconnectLimit times.
	ReconnectBounded
)

func (m ReconnectMode) String() string {
	switch m {
	case ReconnectDisabled:
		return "disabled"
	case ReconnectUnlimited:
		return "unlimited"
	case ReconnectBounded:
		return "bounded"
	}
	return "unknown"
}

// DefaultUptimeFormat mirrors the stock "[uptime]" rendering.
const DefaultUptimeFormat = "%hours% hours %minutes% minutes %seconds% seconds"

type Config struct {
	// Channel
	ChannelURL string
	ChannelID  string

	// Chat session
	Reconnect       ReconnectMode
	ReconnectLimit  int
	CommandCooldown time.Duration
	SuppressSelf    bool
	UptimeFormat    string

	// Commands
	CommandsFile string

	// Event log
	SaveLog bool
	LogFile string

	// Database (optional event sink)
	DBDsn string

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if the
// channel URL is missing; use ValidateChannel when you require a live target.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ChannelURL = os.Getenv("CHZZK_CHANNEL_URL")
	if cfg.ChannelURL != "" {
		id, err := ChannelIDFromURL(cfg.ChannelURL)
		if err != nil {
			slog.Warn("could not extract channel id from CHZZK_CHANNEL_URL", slog.Any("err", err))
		}
		cfg.ChannelID = id
	}

	// Reconnect follows the classic numeric convention: -1 disabled, 0 unlimited, N bounded.
	cfg.Reconnect = ReconnectUnlimited
	if v := os.Getenv("CHZZK_RECONNECT"); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			slog.Warn("invalid CHZZK_RECONNECT, using unlimited", slog.String("value", v))
		case n < 0:
			cfg.Reconnect = ReconnectDisabled
		case n == 0:
			cfg.Reconnect = ReconnectUnlimited
		default:
			cfg.Reconnect = ReconnectBounded
			cfg.ReconnectLimit = n
		}
	}

	cfg.CommandCooldown = 5 * time.Second
	if v := os.Getenv("COMMAND_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.CommandCooldown = d
		} else if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			// Bare numbers are treated as milliseconds for config.json compatibility.
			cfg.CommandCooldown = time.Duration(ms) * time.Millisecond
		} else {
			slog.Warn("invalid COMMAND_COOLDOWN, using default", slog.String("value", v))
		}
	}

	cfg.SuppressSelf = os.Getenv("SUPPRESS_SELF") != "0"

	cfg.UptimeFormat = os.Getenv("UPTIME_FORMAT")
	if cfg.UptimeFormat == "" {
		cfg.UptimeFormat = DefaultUptimeFormat
	}

	cfg.CommandsFile = os.Getenv("COMMANDS_FILE")
	if cfg.CommandsFile == "" {
		cfg.CommandsFile = "commands.json"
	}

	cfg.SaveLog = os.Getenv("SAVE_LOG") == "1"
	cfg.LogFile = os.Getenv("LOG_FILE")
	if cfg.LogFile == "" {
		cfg.LogFile = "log.txt"
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateChannel checks that a usable channel target was configured.
func (c *Config) ValidateChannel() error {
	if c.ChannelID == "" {
		return fmt.Errorf("missing channel: require CHZZK_CHANNEL_URL like https://chzzk.naver.com/live/<id>")
	}
	return nil
}

// ChannelIDFromURL extracts the broadcast channel id from a live page URL.
func ChannelIDFromURL(url string) (string, error) {
	const marker = "chzzk.naver.com/live/"
	_, rest, ok := strings.Cut(url, marker)
	if !ok || rest == "" {
		return "", fmt.Errorf("no channel id in %q", url)
	}
	id, _, _ := strings.Cut(rest, "/")
	if q := strings.IndexAny(id, "?#"); q >= 0 {
		id = id[:q]
	}
	if id == "" {
		return "", fmt.Errorf("no channel id in %q", url)
	}
	return id, nil
}
