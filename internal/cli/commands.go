package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/tracehq/tracesync/internal/common"
	"github.com/tracehq/tracesync/internal/filex"
)

const usage = `usage: tracesync <command>

commands:
  sync             push local changes, then pull remote ones
  pull             force a full pull, ignoring the checkpoint
  status           show pending-change count and sync state
  logs [n]         show the n most recent sync runs (default 10)
  attach <id> <f>  import a file as an attachment of entry <id>
  resolve <id> mine|theirs
                   settle a conflicted entry, restoring the local edit
                   or keeping the server's version
  orphans          mark attachments whose parent entry is gone
  merge-locations  collapse duplicate locations
  prune-blobs      remove remote binaries no attachment references
  watch            follow the remote change feed and sync on changes
  token            store a new access token
`

// Run dispatches the first non-flag argument as a subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	cmd, rest := firstCommand(args)
	switch cmd {
	case "sync":
		return a.runSync(ctx)
	case "pull":
		return a.runPull(ctx)
	case "status":
		return a.runStatus(ctx)
	case "logs":
		return a.runLogs(ctx, rest)
	case "attach":
		return a.runAttach(ctx, rest)
	case "resolve":
		return a.runResolve(ctx, rest)
	case "orphans":
		return a.runOrphans(ctx)
	case "merge-locations":
		return a.runMergeLocations(ctx)
	case "prune-blobs":
		return a.runPruneBlobs(ctx)
	case "watch":
		return a.runWatch(ctx)
	case "token":
		return a.runToken()
	case "", "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// firstCommand returns the first non-flag argument. Every flag we accept
// takes a value, so a flag without "=" consumes the next token too.
func firstCommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			if !strings.Contains(args[i], "=") {
				i++
			}
			continue
		}
		return args[i], args[i+1:]
	}
	return "", nil
}

func (a *App) runSync(ctx context.Context) error {
	err := a.sync.TriggerSync(ctx)
	switch {
	case errors.Is(err, common.ErrOffline):
		return fmt.Errorf("not connected: %w", err)
	case errors.Is(err, common.ErrSyncInProgress):
		return err
	case err != nil:
		return err
	}
	return a.runStatus(ctx)
}

func (a *App) runPull(ctx context.Context) error {
	if err := a.sync.ForcePull(ctx); err != nil {
		return err
	}
	return a.runStatus(ctx)
}

func (a *App) runStatus(ctx context.Context) error {
	st, err := a.sync.Status(ctx)
	if err != nil {
		return err
	}
	state := "idle"
	if st.IsSyncing {
		state = "syncing"
	}
	fmt.Printf("%s, %d pending change(s)\n", state, st.UnsyncedCount)
	return nil
}

func (a *App) runLogs(ctx context.Context, args []string) error {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("logs: invalid count %q", args[0])
		}
		limit = n
	}

	logs, err := a.sync.RecentLogs(ctx, limit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Println("no sync runs recorded")
		return nil
	}
	for _, rec := range logs {
		fmt.Printf("%s  %-7s  %s (%dms)  %s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Level, rec.Message, rec.DurationMS, rec.Detail)
	}
	return nil
}

func (a *App) runAttach(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("attach: expected an entry id and a file path")
	}
	att, err := a.sync.ImportAttachment(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("attachment %s queued for upload\n", att.ID)
	return nil
}

func (a *App) runResolve(ctx context.Context, args []string) error {
	if len(args) != 2 || (args[1] != "mine" && args[1] != "theirs") {
		return errors.New(`resolve: expected an entry id and "mine" or "theirs"`)
	}
	if err := a.sync.ResolveConflict(ctx, args[0], args[1] == "mine"); err != nil {
		return err
	}
	fmt.Println("conflict resolved")
	return nil
}

func (a *App) runOrphans(ctx context.Context) error {
	marked, err := a.sync.MarkOrphanAttachments(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d orphaned attachment(s) marked for deletion\n", marked)
	return nil
}

func (a *App) runMergeLocations(ctx context.Context) error {
	merged, err := a.sync.MergeDuplicateLocations(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d duplicate location(s) merged\n", merged)
	return nil
}

func (a *App) runPruneBlobs(ctx context.Context) error {
	removed, err := a.sync.PruneRemoteBlobs(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d stale blob(s) removed\n", removed)
	return nil
}

// runWatch syncs once, then follows the remote change feed until
// interrupted.
func (a *App) runWatch(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.sync.TriggerSync(ctx); err != nil && !errors.Is(err, common.ErrOffline) {
		return err
	}

	fmt.Println("watching for remote changes (ctrl-c to stop)")
	err := a.listener.Watch(ctx, a.notifier)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) runToken() error {
	token, err := readToken()
	if err != nil {
		return err
	}
	if len(token) == 0 {
		return errors.New("empty token")
	}
	if err := filex.Write(a.config.TokenPath, token); err != nil {
		return err
	}
	fmt.Printf("token stored at %s\n", a.config.TokenPath)
	return nil
}
