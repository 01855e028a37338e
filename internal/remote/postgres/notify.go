package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tracehq/tracesync/internal/logging"
	"github.com/tracehq/tracesync/internal/remote"
)

// Notifier implements remote.Notifier over Postgres LISTEN/NOTIFY. The
// backend's triggers publish one JSON payload per row change on a shared
// channel; Subscribe filters it down to the caller's owner.
type Notifier struct {
	dsn     string
	channel string
	log     logging.Logger
}

// NewNotifier builds a notifier for the given channel.
func NewNotifier(dsn, channel string, log logging.Logger) *Notifier {
	return &Notifier{dsn: dsn, channel: channel, log: log}
}

// payload mirrors the trigger's pg_notify JSON.
type payload struct {
	Table string         `json:"table"`
	Kind  string         `json:"kind"`
	Row   map[string]any `json:"row"`
}

// Subscribe opens a dedicated connection, issues LISTEN, and streams events
// for ownerID until ctx is done or the connection breaks. The channel is
// closed on exit.
func (n *Notifier) Subscribe(ctx context.Context, ownerID string) (<-chan remote.Event, error) {
	conn, err := pgx.Connect(ctx, n.dsn)
	if err != nil {
		return nil, fmt.Errorf("notify connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", n.channel, err)
	}

	events := make(chan remote.Event, 16)
	go func() {
		defer close(events)
		defer conn.Close(context.Background())
		for {
			ntf, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					n.log.Warn(ctx, "change feed disconnected", "error", err)
				}
				return
			}
			var p payload
			if err := json.Unmarshal([]byte(ntf.Payload), &p); err != nil {
				n.log.Warn(ctx, "unparseable notification payload", "error", err)
				continue
			}
			if owner, _ := p.Row["owner_id"].(string); owner != ownerID {
				continue
			}
			select {
			case events <- remote.Event{Table: p.Table, Kind: remote.EventKind(p.Kind), Row: p.Row}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
