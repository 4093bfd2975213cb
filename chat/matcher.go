package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/onnwee/chzzk-bot/config"
	"github.com/onnwee/chzzk-bot/telemetry"
)

// CooldownTable rate-limits command execution per (message text, trigger,
// msgTypeCode) tuple. Keying on the literal message text means identical
// repeated chat text shares a cooldown even across different users.
//
// The table stamps a key on first touch regardless of whether the rule ends up
// matching textually, so the window starts at first sight of a given tuple.
type CooldownTable struct {
	mu        sync.Mutex
	window    time.Duration
	entries   map[cooldownKey]time.Time
	lastSweep time.Time

	now func() time.Time // test hook
}

type cooldownKey struct {
	message     string
	trigger     string
	msgTypeCode int
}

// NewCooldownTable creates a table with the configured suppression window.
func NewCooldownTable(window time.Duration) *CooldownTable {
	return &CooldownTable{
		window:  window,
		entries: make(map[cooldownKey]time.Time),
		now:     time.Now,
	}
}

// Touch reports whether the tuple may fire. Inside the window it suppresses
// without refreshing the stamp; otherwise it stamps now and allows.
func (t *CooldownTable) Touch(message, trigger string, msgTypeCode int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweepLocked(now)
	key := cooldownKey{message: message, trigger: trigger, msgTypeCode: msgTypeCode}
	if last, ok := t.entries[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.entries[key] = now
	return true
}

// Len returns the number of live entries (mainly for introspection and tests).
func (t *CooldownTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// sweepLocked drops entries stale beyond 10x the window. Anything that old is
// already outside the suppression window, so the sweep never changes outcomes;
// it only bounds memory over long runs with high message diversity.
func (t *CooldownTable) sweepLocked(now time.Time) {
	retain := t.window * 10
	if retain <= 0 || now.Sub(t.lastSweep) < retain {
		return
	}
	t.lastSweep = now
	for k, last := range t.entries {
		if now.Sub(last) >= retain {
			delete(t.entries, k)
		}
	}
}

// Matcher evaluates chat messages against the configured rule set. All rules
// are evaluated independently for each message; there is no short-circuit
// after the first match.
type Matcher struct {
	rules     []config.CommandRule
	cooldowns *CooldownTable

	// selfName suppresses rules triggered by the bot's own messages when set.
	selfName string
}

// NewMatcher builds a matcher over a read-only rule set. selfName may be empty
// to disable self-trigger suppression.
func NewMatcher(rules []config.CommandRule, cooldowns *CooldownTable, selfName string) *Matcher {
	return &Matcher{rules: rules, cooldowns: cooldowns, selfName: selfName}
}

// Match returns the rules that fire for msg, in configuration order.
func (m *Matcher) Match(msg ChatMessage) []config.CommandRule {
	if m.selfName != "" && msg.Nickname == m.selfName {
		return nil
	}
	var fired []config.CommandRule
	for _, rule := range m.rules {
		// The cooldown stamp is written before the textual check on purpose:
		// the window is keyed per distinct message content, not per rule.
		if !m.cooldowns.Touch(msg.Text, rule.Trigger, msg.MsgTypeCode) {
			telemetry.IncCommandSuppressed()
			continue
		}
		if strings.HasPrefix(msg.Text, rule.Trigger) && msg.MsgTypeCode == rule.MsgTypeCode {
			fired = append(fired, rule)
		}
	}
	return fired
}
