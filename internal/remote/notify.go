package remote

import "context"

// EventKind classifies a change notification.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Event is one remote change, already filtered to the subscribing owner.
type Event struct {
	Table string
	Kind  EventKind
	Row   Row
}

// Notifier yields remote change events. The returned channel closes when
// ctx is done or the subscription breaks.
type Notifier interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan Event, error)
}
