// Package chat contains the CHZZK chat session engine.
//
// The pieces, leaf to root:
//   - Classify: pure mapping from raw websocket frames to semantic events
//     (session-accepted, chat message, unknown).
//   - Matcher / CooldownTable: decides which configured command rules fire for
//     a message, rate-limited per (message text, trigger, msgTypeCode) tuple.
//   - Resolver: expands bracketed reply template placeholders by fetching the
//     live-detail, live-status and profile-card documents concurrently, with
//     per-placeholder fault isolation.
//   - Session: one live websocket connection — handshake, heartbeat,
//     serialized sends with a stale-session-id guard, frames delivered on a
//     channel in transport order.
//   - Bot: the orchestrator loop (authenticate, connect, serve, reconnect)
//     that owns the rule set and cooldown table for the process.
//
// Credentials: the platform API client needs the two Naver session cookies;
// how they are obtained (browser login, env, secret store) is outside this
// package.
package chat
