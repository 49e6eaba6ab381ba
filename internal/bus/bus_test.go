package bus

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	b, err := New(-1, logger)
	if err != nil {
		t.Fatalf("starting bus: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

type received struct {
	subject string
	payload []byte
}

func collect(t *testing.T, b *Bus) <-chan received {
	t.Helper()
	ch := make(chan received, 16)
	sub, err := b.SubscribeAll(func(subject string, payload []byte) {
		ch <- received{subject, payload}
	})
	if err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return ch
}

func recv(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no bus message before deadline")
		return received{}
	}
}

func TestSubjectNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"kill", KillSubject(9001, "7777"), "killfeed.kills.9001.7777"},
		{"refresh", RefreshSubject(9001, "7777"), "killfeed.refresh.9001.7777"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s subject = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestPublishKillRoundTrip(t *testing.T) {
	b := newTestBus(t)
	ch := collect(t, b)

	ev := &domain.KillEvent{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Killer:    "Alice",
		Victim:    "Bob",
		Weapon:    "AK74",
		Distance:  150.5,
	}
	b.PublishKill(9001, "7777", ev)

	msg := recv(t, ch)
	if msg.subject != KillSubject(9001, "7777") {
		t.Errorf("subject = %q", msg.subject)
	}

	var evt domain.Event
	if err := json.Unmarshal(msg.payload, &evt); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if evt.Type != domain.EventKill || evt.GuildID != 9001 || evt.ServerID != "7777" {
		t.Errorf("envelope = %+v", evt)
	}

	data, err := json.Marshal(evt.Data)
	if err != nil {
		t.Fatalf("re-encoding payload: %v", err)
	}
	var kill domain.KillEvent
	if err := json.Unmarshal(data, &kill); err != nil {
		t.Fatalf("decoding kill: %v", err)
	}
	if kill.Killer != "Alice" || kill.Victim != "Bob" || kill.Weapon != "AK74" {
		t.Errorf("kill = %+v", kill)
	}
}

func TestPublishRefreshRoundTrip(t *testing.T) {
	b := newTestBus(t)
	ch := collect(t, b)

	b.PublishRefresh(domain.EventRefreshComplete, 9001, "7777", map[string]int{"events_applied": 42})

	msg := recv(t, ch)
	if msg.subject != RefreshSubject(9001, "7777") {
		t.Errorf("subject = %q", msg.subject)
	}
	var evt domain.Event
	if err := json.Unmarshal(msg.payload, &evt); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if evt.Type != domain.EventRefreshComplete {
		t.Errorf("type = %q, want %q", evt.Type, domain.EventRefreshComplete)
	}
}

func TestWildcardSeesAllScopes(t *testing.T) {
	b := newTestBus(t)
	ch := collect(t, b)

	b.PublishKill(1, "alpha", &domain.KillEvent{Killer: "A", Victim: "B", Weapon: "AK74"})
	b.PublishKill(2, "beta", &domain.KillEvent{Killer: "C", Victim: "D", Weapon: "MR5"})

	subjects := map[string]bool{}
	for i := 0; i < 2; i++ {
		subjects[recv(t, ch).subject] = true
	}
	if !subjects[KillSubject(1, "alpha")] || !subjects[KillSubject(2, "beta")] {
		t.Errorf("subjects = %v", subjects)
	}
}
