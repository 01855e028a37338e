package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tracehq/tracesync/internal/config"
	"github.com/tracehq/tracesync/internal/identity"
	"github.com/tracehq/tracesync/internal/logging"
	"github.com/tracehq/tracesync/internal/remote"
	"github.com/tracehq/tracesync/internal/store"
)

const testOwner = "owner-1"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.RunMigrations(context.Background(), db))
	return store.New(db)
}

func newTestSyncer(t *testing.T, st *store.Store, api *fakeAPI, blobs *fakeBlobs) *Syncer {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.OnlineCheckAddr = "" // skip the connectivity probe in tests
	var b remote.BlobStore
	if blobs != nil {
		b = blobs
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return New(st, api, b, identity.Static(testOwner), cfg, log)
}

// fakeAPI is an in-memory remote.API that records every call.
type fakeAPI struct {
	mu     sync.Mutex
	tables map[string]map[string]remote.Row
	calls  []string

	// failWith fails every call whose recorded name starts with the key.
	failWith map[string]error

	// blockSelect, when set, makes Select wait until the channel closes;
	// selectEntered is signalled once a Select is inside.
	blockSelect   chan struct{}
	selectEntered chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		tables:   map[string]map[string]remote.Row{},
		failWith: map[string]error{},
	}
}

func (f *fakeAPI) seed(table string, rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tables[table] == nil {
		f.tables[table] = map[string]remote.Row{}
	}
	for _, r := range rows {
		f.tables[table][r["id"].(string)] = copyRow(r)
	}
}

func (f *fakeAPI) row(table, id string) remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.tables[table][id]
	if !ok {
		return nil
	}
	return copyRow(r)
}

func (f *fakeAPI) record(name string) error {
	f.calls = append(f.calls, name)
	for prefix, err := range f.failWith {
		if strings.HasPrefix(name, prefix) {
			return err
		}
	}
	return nil
}

// callCount counts recorded calls with the given prefix.
func (f *fakeAPI) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// callIndex returns the position of the first call with the given prefix,
// or -1.
func (f *fakeAPI) callIndex(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (f *fakeAPI) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeAPI) Select(ctx context.Context, table string, flt remote.Filter) ([]remote.Row, error) {
	f.mu.Lock()
	if err := f.record("select:" + table); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	block := f.blockSelect
	entered := f.selectEntered
	f.mu.Unlock()

	if block != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []remote.Row
	for _, r := range f.tables[table] {
		if !matches(r, flt) {
			continue
		}
		out = append(out, copyRow(r))
	}
	if flt.OrderBy != "" {
		sort.Slice(out, func(i, j int) bool {
			less := rowTime(out[i], flt.OrderBy).Before(rowTime(out[j], flt.OrderBy))
			if flt.Descending {
				return !less
			}
			return less
		})
	}
	return out, nil
}

func (f *fakeAPI) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("%v", row[conflictKey])
	if err := f.record("upsert:" + table + ":" + id); err != nil {
		return err
	}
	if f.tables[table] == nil {
		f.tables[table] = map[string]remote.Row{}
	}
	f.tables[table][id] = copyRow(row)
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, table string, patch remote.Row, flt remote.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update:" + table); err != nil {
		return err
	}
	for _, r := range f.tables[table] {
		if !matches(r, flt) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
	}
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, table string, flt remote.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete:" + table); err != nil {
		return err
	}
	deleted := 0
	for id, r := range f.tables[table] {
		if matches(r, flt) {
			delete(f.tables[table], id)
			deleted++
		}
	}
	if deleted == 0 {
		return remote.NewError(remote.CodeNotFound, "no rows matched delete on %s", table)
	}
	return nil
}

func matches(r remote.Row, flt remote.Filter) bool {
	for k, want := range flt.Eq {
		if !reflect.DeepEqual(r[k], want) {
			return false
		}
	}
	if flt.UpdatedAfter != nil && !rowTime(r, "updated_at").After(*flt.UpdatedAfter) {
		return false
	}
	return true
}

func copyRow(r remote.Row) remote.Row {
	out := make(remote.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// fakeBlobs is an in-memory remote.BlobStore.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) Remove(ctx context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		delete(f.objects, p)
	}
	return nil
}

func (f *fakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
