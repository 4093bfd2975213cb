package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/chzzk-bot/config"
	"github.com/onnwee/chzzk-bot/telemetry"
)

// DefaultEndpoints is the regional chat server pool. One endpoint is chosen
// uniformly at random per connection attempt; this is load distribution, not
// failover. A failed endpoint is handled by the reconnect policy.
var DefaultEndpoints = []string{
	"wss://kr-ss1.chat.naver.com/chat",
	"wss://kr-ss2.chat.naver.com/chat",
	"wss://kr-ss3.chat.naver.com/chat",
	"wss://kr-ss4.chat.naver.com/chat",
	"wss://kr-ss5.chat.naver.com/chat",
}

const defaultHeartbeatInterval = 20 * time.Second

var (
	// ErrNotAuthenticated is returned when a send is attempted before the
	// server has accepted the session. Callers log it as a policy violation.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrStaleSession is returned when a send carries a session id that is no
	// longer current (a reconnect happened while the reply was in flight).
	ErrStaleSession = errors.New("session id is stale")
)

// SessionState is the transport connection state.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SessionConfig carries everything one connection attempt needs. The chat
// channel id and access token are re-resolved before every attempt because a
// disconnect invalidates them.
type SessionConfig struct {
	Endpoints         []string
	ChatChannelID     string
	UserIDHash        string
	AccessToken       string
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
}

// Session owns one live duplex connection to the chat transport. Writes are
// serialized; inbound frames are delivered on the Frames channel in transport
// order and consumed by a single dispatch loop.
type Session struct {
	conn          *websocket.Conn
	chatChannelID string
	endpoint      string

	state  atomic.Int32
	frames chan []byte

	writeMu sync.Mutex

	mu  sync.Mutex
	sid string

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials a randomly selected endpoint, sends the authentication frame,
// and starts the read pump and heartbeat. The session is not authenticated
// until the server answers with a session-accepted frame (see Accept).
func Connect(ctx context.Context, cfg SessionConfig) (*Session, error) {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	//nolint:gosec // G404: math/rand is sufficient for load distribution, not used for security
	endpoint := endpoints[rand.Intn(len(endpoints))]

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	s := &Session{
		conn:          conn,
		chatChannelID: cfg.ChatChannelID,
		endpoint:      endpoint,
		frames:        make(chan []byte, 16),
		done:          make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	auth, err := encodeAuthFrame(cfg.ChatChannelID, cfg.UserIDHash, cfg.AccessToken)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("encode auth frame: %w", err)
	}
	if err := s.write(auth); err != nil {
		s.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}
	s.state.Store(int32(StateOpen))
	telemetry.UpdateSessionGauge(true)
	slog.Info("connected to chat server", slog.String("endpoint", endpoint))

	go s.readPump()

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	go s.heartbeat(interval)

	return s, nil
}

// Endpoint returns the chat server chosen for this connection.
func (s *Session) Endpoint() string { return s.endpoint }

// State returns the transport connection state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Frames returns the inbound frame channel. It is closed when the transport
// closes, which is the consumer's disconnect signal.
func (s *Session) Frames() <-chan []byte { return s.frames }

// Accept records the server-assigned session id, making the session
// authenticated. Called when the session-accepted frame arrives.
func (s *Session) Accept(sid string) {
	s.mu.Lock()
	s.sid = sid
	s.mu.Unlock()
}

// SID returns the current session id, empty until Accept.
func (s *Session) SID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

// Send transmits one chat message. sid must be the id captured when the reply
// was prepared: if it no longer matches the current session id the reply is
// refused with ErrStaleSession rather than sent into a reconnected session.
func (s *Session) Send(sid, msg, streamingChannelID string) error {
	s.mu.Lock()
	current := s.sid
	s.mu.Unlock()
	if current == "" {
		return ErrNotAuthenticated
	}
	if sid != current {
		return ErrStaleSession
	}
	frame, err := encodeSendFrame(s.chatChannelID, sid, msg, streamingChannelID, time.Now())
	if err != nil {
		return fmt.Errorf("encode send frame: %w", err)
	}
	return s.write(frame)
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		telemetry.UpdateSessionGauge(false)
		close(s.done)
		if err := s.conn.Close(); err != nil {
			slog.Debug("close chat connection", slog.Any("err", err))
		}
	})
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump delivers frames in transport order until the connection drops, then
// closes the frame channel so the dispatch loop observes the closure.
func (s *Session) readPump() {
	defer func() {
		s.Close()
		close(s.frames)
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() != StateClosed {
				slog.Warn("disconnected from chat server", slog.Any("err", err))
			}
			return
		}
		select {
		case s.frames <- data:
		case <-s.done:
			return
		}
	}
}

// heartbeat sends a no-op frame on a fixed interval. It is a best-effort side
// channel: write failures are ignored and the loop checks for closure
// cooperatively before each tick.
func (s *Session) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		if s.State() != StateOpen {
			return
		}
		frame, err := encodeHeartbeatFrame()
		if err != nil {
			continue
		}
		if err := s.write(frame); err != nil {
			slog.Debug("heartbeat write failed", slog.Any("err", err))
		}
	}
}

// ReconnectPolicy decides whether a closed session is re-established.
type ReconnectPolicy struct {
	Mode  config.ReconnectMode
	Limit int
}

// Allow reports whether reconnect attempt n (1-based) may proceed.
func (p ReconnectPolicy) Allow(attempt int) bool {
	switch p.Mode {
	case config.ReconnectDisabled:
		return false
	case config.ReconnectUnlimited:
		return true
	case config.ReconnectBounded:
		return attempt <= p.Limit
	}
	return false
}
