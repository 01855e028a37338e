// Package cli is the command-line surface of the sync client: it wires the
// local store, the remote adapters and the sync engine together and exposes
// one-shot subcommands plus a long-running watch mode.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/tracehq/tracesync/internal/config"
	"github.com/tracehq/tracesync/internal/identity"
	"github.com/tracehq/tracesync/internal/logging"
	"github.com/tracehq/tracesync/internal/remote"
	"github.com/tracehq/tracesync/internal/remote/postgres"
	"github.com/tracehq/tracesync/internal/remote/s3blob"
	"github.com/tracehq/tracesync/internal/store"
	"github.com/tracehq/tracesync/internal/syncer"
)

// App bundles the composition root: everything is constructed here and
// passed down explicitly.
type App struct {
	config   *config.Config
	log      logging.Logger
	store    *store.Store
	api      *postgres.API
	notifier *postgres.Notifier
	sync     *syncer.Syncer
	listener *syncer.Listener
}

// NewApp opens the local store and connects the remote adapters. The
// Postgres pool and S3 client connect lazily, so construction succeeds
// offline; commands that need the network fail on first use instead.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	api, err := postgres.Connect(ctx, cfg.RemoteDSN)
	if err != nil {
		return nil, err
	}

	var blobs remote.BlobStore
	if cfg.S3Bucket != "" {
		blobs, err = s3blob.New(ctx, s3blob.Options{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
	}

	ident := identity.NewTokenFile(cfg.TokenPath, cfg.TokenSecret)
	s := syncer.New(st, api, blobs, ident, cfg, log)

	return &App{
		config:   cfg,
		log:      log,
		store:    st,
		api:      api,
		notifier: postgres.NewNotifier(cfg.RemoteDSN, cfg.NotifyChannel, log),
		sync:     s,
		listener: syncer.NewListener(s, cfg.DebounceWindow, cfg.MinSyncInterval, log),
	}, nil
}

// Close releases the database and the remote pool.
func (a *App) Close() {
	a.api.Close()
	if err := a.store.DB.Close(); err != nil {
		a.log.Warn(context.Background(), "could not close local store", "error", err)
	}
}
