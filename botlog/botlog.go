// Package botlog persists chat and command events: one line per event in the
// classic "yyyy/MM/dd HH:mm:ss / CATEGORY / fields" format, appended to a log
// file, plus an optional Postgres sink when a database is configured.
package botlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const timestampLayout = "2006/01/02 15:04:05"

// Logger appends event records to a file and/or a chat_events table. Either
// sink may be absent; a fully disabled logger is valid and records nothing.
type Logger struct {
	file *os.File
	db   *sql.DB

	now func() time.Time // test hook
}

// Open creates a logger appending to path (empty disables the file sink) with
// an optional database sink (nil disables it).
func Open(path string, db *sql.DB) (*Logger, error) {
	l := &Logger{db: db, now: time.Now}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		l.file = f
	}
	return l, nil
}

// Message records one inbound chat message.
func (l *Logger) Message(ctx context.Context, msgTypeCode int, nickname, text string) {
	l.record(ctx, "MESSAGE", fmt.Sprintf("%d", msgTypeCode), nickname, text)
}

// Command records one fired command rule.
func (l *Logger) Command(ctx context.Context, trigger, reply string) {
	l.record(ctx, "COMMAND", trigger, reply)
}

func (l *Logger) record(ctx context.Context, category string, fields ...string) {
	if l == nil {
		return
	}
	detail := strings.Join(fields, " / ")
	if l.file != nil {
		line := l.now().Format(timestampLayout) + " / " + category + " / " + detail + "\n"
		if _, err := l.file.WriteString(line); err != nil {
			slog.Error("failed to append event log", slog.Any("err", err))
		}
	}
	if l.db != nil {
		if _, err := l.db.ExecContext(ctx, `INSERT INTO chat_events (at, category, detail) VALUES ($1, $2, $3)`,
			l.now().UTC(), category, detail); err != nil {
			slog.Error("failed to insert chat event", slog.Any("err", err))
		}
	}
}

// Close releases the file sink. The database connection is owned by the caller.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
