// Package bus runs the embedded NATS server that fans kill and refresh
// events out to websocket clients and external consumers such as the
// Discord notifier process.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

const (
	killSubjectPrefix    = "killfeed.kills"
	refreshSubjectPrefix = "killfeed.refresh"

	// WildcardSubject matches every event the bus carries.
	WildcardSubject = "killfeed.>"

	readyTimeout = 10 * time.Second
)

// KillSubject returns the per-scope subject for kill events.
func KillSubject(guildID int64, serverID string) string {
	return fmt.Sprintf("%s.%d.%s", killSubjectPrefix, guildID, serverID)
}

// RefreshSubject returns the per-scope subject for refresh events.
func RefreshSubject(guildID int64, serverID string) string {
	return fmt.Sprintf("%s.%d.%s", refreshSubjectPrefix, guildID, serverID)
}

// Bus is an embedded NATS server plus an in-process client connection.
type Bus struct {
	srv    *server.Server
	conn   *nats.Conn
	logger *slog.Logger
}

// New starts an embedded NATS server on the given port and connects to
// it. Port -1 picks a free port, which tests rely on.
func New(port int, logger *slog.Logger) (*Bus, error) {
	opts := &server.Options{
		ServerName: "killfeed-bus",
		Host:       "127.0.0.1",
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating bus server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("bus server not ready in time")
	}

	conn, err := nats.Connect(ns.ClientURL(), nats.Name("killfeed"))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}

	return &Bus{srv: ns, conn: conn, logger: logger}, nil
}

// ClientURL returns the URL external consumers connect to.
func (b *Bus) ClientURL() string {
	return b.srv.ClientURL()
}

// PublishKill sends a kill event on the scope's kill subject.
func (b *Bus) PublishKill(guildID int64, serverID string, ev *domain.KillEvent) {
	b.publish(KillSubject(guildID, serverID), domain.Event{
		Type:      domain.EventKill,
		GuildID:   guildID,
		ServerID:  serverID,
		Timestamp: time.Now().UTC(),
		Data:      ev,
	})
}

// PublishRefresh sends a refresh progress or completion event on the
// scope's refresh subject.
func (b *Bus) PublishRefresh(eventType string, guildID int64, serverID string, data interface{}) {
	b.publish(RefreshSubject(guildID, serverID), domain.Event{
		Type:      eventType,
		GuildID:   guildID,
		ServerID:  serverID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (b *Bus) publish(subject string, evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error("encoding bus event", "subject", subject, "error", err)
		return
	}
	if err := b.conn.Publish(subject, payload); err != nil {
		b.logger.Warn("publishing bus event", "subject", subject, "error", err)
	}
}

// SubscribeAll delivers every killfeed event to fn until the
// subscription is unsubscribed or the bus closes.
func (b *Bus) SubscribeAll(fn func(subject string, payload []byte)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(WildcardSubject, func(msg *nats.Msg) {
		fn(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to bus: %w", err)
	}
	return sub, nil
}

// Close drains the client connection, then stops the server and waits
// for it to finish.
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("draining bus connection", "error", err)
	}
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
}
