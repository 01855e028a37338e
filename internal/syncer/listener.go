package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/logging"
	"github.com/tracehq/tracesync/internal/remote"
)

// Listener funnels triggers into the syncer. Remote notifications and local
// writes are debounced on a re-armed window; the foreground trigger is
// throttled instead, because it fires far too often to debounce usefully.
type Listener struct {
	sync        *Syncer
	window      time.Duration
	minInterval time.Duration
	log         logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	lastRun time.Time
}

// NewListener builds a listener over s with the given debounce window and
// foreground throttle interval.
func NewListener(s *Syncer, window, minInterval time.Duration, log logging.Logger) *Listener {
	return &Listener{sync: s, window: window, minInterval: minInterval, log: log}
}

// Notify records one remote change notification. The debounce timer is
// re-armed, not stacked: a burst of notifications yields one sync run,
// window after the last one.
func (l *Listener) Notify() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.window, l.fire)
}

// LocalWrite is the post-mutation hook; it shares the debounce window so a
// burst of edits becomes one run. The one-shot CLI never has a listener
// running while it mutates, so this trigger exists for the embedding
// application, which calls it after each local write.
func (l *Listener) LocalWrite() {
	l.Notify()
}

// Foreground handles the app-came-to-foreground trigger of the embedding
// application. It is throttled to at most one run per minInterval; the
// finer-grained triggers cover the rest.
func (l *Listener) Foreground() {
	l.mu.Lock()
	if time.Since(l.lastRun) < l.minInterval {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.fire()
}

func (l *Listener) fire() {
	l.mu.Lock()
	l.lastRun = time.Now()
	l.mu.Unlock()

	ctx := context.Background()
	err := l.sync.TriggerSync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrSyncInProgress):
		// A running sync is never interrupted; the next trigger catches up.
	case errors.Is(err, common.ErrOffline):
		l.log.Debug(ctx, "sync skipped: offline")
	default:
		l.log.Warn(ctx, "background sync failed", "error", err)
	}
}

// Watch subscribes to the remote change feed and debounces its events until
// ctx is done or the subscription breaks.
func (l *Listener) Watch(ctx context.Context, notifier remote.Notifier) error {
	owner, err := l.sync.ident.OwnerID(ctx)
	if err != nil {
		return err
	}
	events, err := notifier.Subscribe(ctx, owner)
	if err != nil {
		return err
	}
	for ev := range events {
		l.log.Debug(ctx, "remote change", "table", ev.Table, "kind", string(ev.Kind))
		l.Notify()
	}
	return ctx.Err()
}
