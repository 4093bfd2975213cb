package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chzzk-bot/chzzkapi"
	"github.com/onnwee/chzzk-bot/config"
)

// newBotTestAPI serves the endpoints the orchestrator touches before and
// during a session.
func newBotTestAPI(t *testing.T, startMillis int64) *httptest.Server {
	t.Helper()
	playback, err := json.Marshal(fmt.Sprintf(`{"live":{"start":%d}}`, startMillis))
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/live-detail"):
			fmt.Fprintf(w, `{"code":200,"content":{"chatChannelId":"cc1","status":"STARTED","livePlaybackJson":%s}}`, playback)
		case strings.HasSuffix(path, "/access-token"):
			fmt.Fprint(w, `{"code":200,"content":{"accessToken":"acc-tok"}}`)
		case strings.HasSuffix(path, "/getUserStatus"):
			fmt.Fprint(w, `{"code":200,"content":{"userIdHash":"bot-uid","nickname":"botnick"}}`)
		case strings.HasSuffix(path, "/live-status"):
			fmt.Fprint(w, `{"code":200,"content":{"liveTitle":"test stream"}}`)
		case strings.Contains(path, "/profile-card"):
			fmt.Fprint(w, `{"code":200,"content":{"nickname":"someone"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newBotAPIClient(api *httptest.Server) *chzzkapi.Client {
	return &chzzkapi.Client{
		Cookies:        chzzkapi.StaticCookies{Aut: "a", Ses: "s"},
		ServiceBaseURL: api.URL,
		GameBaseURL:    api.URL,
	}
}

func TestBotTerminatesAfterBoundedReconnects(t *testing.T) {
	api := newBotTestAPI(t, time.Now().UnixMilli())
	defer api.Close()

	var dials atomic.Int32
	srv, wsURL := newChatServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		// Accept the auth frame, then drop the connection.
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})
	defer srv.Close()

	cfg := &config.Config{
		ChannelID:       "streamer-id",
		Reconnect:       config.ReconnectBounded,
		ReconnectLimit:  2,
		CommandCooldown: time.Minute,
	}
	bot := NewBot(cfg, nil, newBotAPIClient(api), nil)
	bot.Endpoints = []string{wsURL}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bot.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := dials.Load(); got != 3 {
		t.Errorf("connection attempts = %d, want 3 (initial + 2 reconnects)", got)
	}
	if bot.State() != BotTerminated {
		t.Errorf("state = %v, want terminated", bot.State())
	}
}

func TestBotDisabledReconnectIsTerminal(t *testing.T) {
	api := newBotTestAPI(t, time.Now().UnixMilli())
	defer api.Close()

	var dials atomic.Int32
	srv, wsURL := newChatServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		_, _, _ = conn.ReadMessage()
		conn.Close()
	})
	defer srv.Close()

	cfg := &config.Config{
		ChannelID:       "streamer-id",
		Reconnect:       config.ReconnectDisabled,
		CommandCooldown: time.Minute,
	}
	bot := NewBot(cfg, nil, newBotAPIClient(api), nil)
	bot.Endpoints = []string{wsURL}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bot.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("connection attempts = %d, want 1", got)
	}
}

func TestBotRepliesToCommand(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := newBotTestAPI(t, start.UnixMilli())
	defer api.Close()

	replies := make(chan []byte, 1)
	srv, wsURL := newChatServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // auth frame
			return
		}
		msgs := []string{
			`{"cmd":10100,"bdy":{"sid":"sid-1"}}`,
			`{"cmd":93101,"bdy":[{"profile":"{\"nickname\":\"viewer\",\"userIdHash\":\"u1\"}","extras":"{\"streamingChannelId\":\"sc1\"}","msg":"!uptime","msgTypeCode":1}]}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		replies <- data
	})
	defer srv.Close()

	cfg := &config.Config{
		ChannelID:       "streamer-id",
		Reconnect:       config.ReconnectDisabled,
		CommandCooldown: time.Minute,
		SuppressSelf:    true,
	}
	rules := []config.CommandRule{{Trigger: "!uptime", MsgTypeCode: 1, Reply: "Up: [uptime]"}}
	bot := NewBot(cfg, rules, newBotAPIClient(api), nil)
	bot.Endpoints = []string{wsURL}
	bot.resolver.Now = func() time.Time { return start.Add(3661000 * time.Millisecond) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	select {
	case data := <-replies:
		var frame struct {
			Cmd int    `json:"cmd"`
			Sid string `json:"sid"`
			Bdy struct {
				Msg string `json:"msg"`
			} `json:"bdy"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode reply frame: %v", err)
		}
		if frame.Cmd != 3101 || frame.Sid != "sid-1" {
			t.Errorf("reply frame envelope = %+v", frame)
		}
		if want := "Up: 1 hours 1 minutes 1 seconds"; frame.Bdy.Msg != want {
			t.Errorf("reply = %q, want %q", frame.Bdy.Msg, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply frame")
	}
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}
