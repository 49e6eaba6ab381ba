package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abakedjoetato/DiscordKillfeed/internal/bus"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

func TestWebSocketReceivesBusEvents(t *testing.T) {
	a := newTestAPI(t)

	b, err := bus.New(-1, testLogger())
	if err != nil {
		t.Fatalf("starting bus: %v", err)
	}
	t.Cleanup(b.Close)

	if err := a.router.StartWebSocketHub(b); err != nil {
		t.Fatalf("starting hub: %v", err)
	}

	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The hub registers the client asynchronously after the handshake.
	deadline := time.Now().Add(2 * time.Second)
	for a.router.wsHub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.PublishKill(testGuildID, testServerID, &domain.KillEvent{
		Timestamp: time.Now().UTC(),
		Killer:    "Alice",
		Victim:    "Bob",
		Weapon:    "AK74",
		Distance:  150.5,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading websocket frame: %v", err)
	}

	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		t.Fatalf("decoding frame %q: %v", payload, err)
	}
	if ev.Type != domain.EventKill || ev.GuildID != testGuildID || ev.ServerID != testServerID {
		t.Errorf("event envelope = %+v", ev)
	}
	if !strings.Contains(string(payload), "Alice") {
		t.Errorf("frame missing kill data: %s", payload)
	}
}
