package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/terra-clan/psv-academy/internal/models"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PostgresNotifier relays progression events between instances over LISTEN/NOTIFY
type PostgresNotifier struct {
	BaseProvider
	db      *sql.DB
	dsn     string
	channel string
}

// NewPostgresNotifier opens a lib/pq connection used to publish on channel
func NewPostgresNotifier(dsn, channel string) (*PostgresNotifier, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresNotifier{
		BaseProvider: BaseProvider{serviceType: "postgres-notify"},
		db:           db,
		dsn:          dsn,
		channel:      channel,
	}, nil
}

// Publish sends the event as a NOTIFY payload
func (n *PostgresNotifier) Publish(ctx context.Context, e models.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := n.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Listen delivers every event received on the channel to deliver until ctx is done
func (n *PostgresNotifier) Listen(ctx context.Context, deliver func(models.Event)) error {
	listener := pq.NewListener(n.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("postgres listener event", "event", ev, "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(n.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.channel, err)
	}
	slog.Info("listening for progression events", "channel", n.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-listener.Notify:
			// nil after a reconnect
			if notification == nil {
				continue
			}
			var e models.Event
			if err := json.Unmarshal([]byte(notification.Extra), &e); err != nil {
				slog.Warn("failed to decode event payload", "error", err)
				continue
			}
			deliver(e)
		case <-time.After(listenerPingInterval):
			if err := listener.Ping(); err != nil {
				slog.Warn("postgres listener ping failed", "error", err)
			}
		}
	}
}

// HealthCheck verifies the publishing connection
func (n *PostgresNotifier) HealthCheck(ctx context.Context) error {
	return n.db.PingContext(ctx)
}

// Close closes the publishing connection
func (n *PostgresNotifier) Close() error {
	return n.db.Close()
}
