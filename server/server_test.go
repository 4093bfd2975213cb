package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/chzzk-bot/chat"
	"github.com/onnwee/chzzk-bot/config"
)

func newTestMux() http.Handler {
	cfg := &config.Config{ChannelID: "streamer-id"}
	bot := chat.NewBot(cfg, nil, nil, nil)
	return NewMux(bot)
}

func TestHealthz(t *testing.T) {
	mux := newTestMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	mux := newTestMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status chat.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != "idle" {
		t.Errorf("state = %q, want idle", status.State)
	}
	if status.ChannelID != "streamer-id" {
		t.Errorf("channel_id = %q", status.ChannelID)
	}
}

func TestCorrelationHeader(t *testing.T) {
	mux := newTestMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected generated X-Request-Id")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "corr-1")
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "corr-1" {
		t.Errorf("X-Request-Id = %q, want caller's id echoed", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newTestMux()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
