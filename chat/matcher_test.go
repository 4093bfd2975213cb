package chat

import (
	"testing"
	"time"

	"github.com/onnwee/chzzk-bot/config"
)

func newTestCooldowns(window time.Duration) (*CooldownTable, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	table := NewCooldownTable(window)
	table.now = func() time.Time { return now }
	return table, &now
}

func msg(nickname, text string, typeCode int) ChatMessage {
	return ChatMessage{Nickname: nickname, UserID: nickname + "-id", Text: text, MsgTypeCode: typeCode}
}

func TestMatcherFires(t *testing.T) {
	rules := []config.CommandRule{
		{Trigger: "!uptime", MsgTypeCode: 1, Reply: "Up: [uptime]"},
		{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello [nickname]"},
	}
	tests := []struct {
		name    string
		message ChatMessage
		want    int
	}{
		{"prefix and type match", msg("viewer", "!uptime", 1), 1},
		{"prefix with trailing text", msg("viewer", "!uptime please", 1), 1},
		{"wrong type code", msg("viewer", "!uptime", 7), 0},
		{"no matching trigger", msg("viewer", "hello there", 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, _ := newTestCooldowns(time.Minute)
			m := NewMatcher(rules, table, "")
			if got := m.Match(tt.message); len(got) != tt.want {
				t.Errorf("Match() fired %d rules, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMatcherNoShortCircuit(t *testing.T) {
	rules := []config.CommandRule{
		{Trigger: "!up", MsgTypeCode: 1, Reply: "a"},
		{Trigger: "!uptime", MsgTypeCode: 1, Reply: "b"},
	}
	table, _ := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "")
	fired := m.Match(msg("viewer", "!uptime", 1))
	if len(fired) != 2 {
		t.Fatalf("Match() fired %d rules, want both", len(fired))
	}
}

func TestCooldownSuppressesAcrossUsers(t *testing.T) {
	rules := []config.CommandRule{{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello"}}
	table, now := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "")

	if fired := m.Match(msg("alice", "!hi", 1)); len(fired) != 1 {
		t.Fatalf("first message: fired %d, want 1", len(fired))
	}
	// A different user, the same literal text, inside the window.
	if fired := m.Match(msg("bob", "!hi", 1)); len(fired) != 0 {
		t.Fatalf("second message inside window: fired %d, want 0", len(fired))
	}
	*now = now.Add(61 * time.Second)
	if fired := m.Match(msg("bob", "!hi", 1)); len(fired) != 1 {
		t.Fatalf("message after window: fired %d, want 1", len(fired))
	}
}

func TestCooldownSuppressionDoesNotRefreshStamp(t *testing.T) {
	rules := []config.CommandRule{{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello"}}
	table, now := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "")

	m.Match(msg("alice", "!hi", 1))
	*now = now.Add(40 * time.Second)
	if fired := m.Match(msg("bob", "!hi", 1)); len(fired) != 0 {
		t.Fatal("expected suppression at 40s")
	}
	// 65s after the original stamp. If the suppressed attempt had refreshed
	// the stamp this would still be inside the window.
	*now = now.Add(25 * time.Second)
	if fired := m.Match(msg("carol", "!hi", 1)); len(fired) != 1 {
		t.Fatal("expected re-fire 65s after the original stamp")
	}
}

func TestCooldownStampedBeforeTextualMatch(t *testing.T) {
	rules := []config.CommandRule{{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello"}}
	table, _ := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "")

	// The message doesn't match the trigger, but the (message,trigger,type)
	// key is stamped anyway.
	if fired := m.Match(msg("alice", "unrelated", 1)); len(fired) != 0 {
		t.Fatal("unexpected fire")
	}
	if got := table.Len(); got != 1 {
		t.Errorf("cooldown entries = %d, want 1", got)
	}
}

func TestMatcherDistinctKeysDoNotShareCooldown(t *testing.T) {
	rules := []config.CommandRule{{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello"}}
	table, _ := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "")

	if fired := m.Match(msg("alice", "!hi", 1)); len(fired) != 1 {
		t.Fatal("expected fire for !hi")
	}
	// Different literal text, same rule, inside the window: separate key.
	if fired := m.Match(msg("alice", "!hi there", 1)); len(fired) != 1 {
		t.Fatal("expected fire for distinct message text")
	}
}

func TestMatcherSuppressesSelf(t *testing.T) {
	rules := []config.CommandRule{{Trigger: "!hi", MsgTypeCode: 1, Reply: "hello"}}
	table, _ := newTestCooldowns(time.Minute)
	m := NewMatcher(rules, table, "botname")

	if fired := m.Match(msg("botname", "!hi", 1)); len(fired) != 0 {
		t.Fatal("bot must not trigger itself")
	}
	if fired := m.Match(msg("viewer", "!hi", 1)); len(fired) != 1 {
		t.Fatal("other users still trigger")
	}
}

func TestCooldownEviction(t *testing.T) {
	table, now := newTestCooldowns(time.Minute)

	if !table.Touch("one", "!a", 1) {
		t.Fatal("first touch allowed")
	}
	// Past the 10x retention horizon a new touch sweeps the stale entry.
	*now = now.Add(10*time.Minute + time.Second)
	if !table.Touch("two", "!a", 1) {
		t.Fatal("touch after horizon allowed")
	}
	if got := table.Len(); got != 1 {
		t.Errorf("entries after sweep = %d, want 1", got)
	}
}
