// Package postgres adapts the backend's Postgres database to the remote
// capability interfaces: the relational API over a connection pool and the
// change feed over LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracehq/tracesync/internal/remote"
)

// API implements remote.API over a pgx pool.
type API struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn.
func Connect(ctx context.Context, dsn string) (*API, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	return &API{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *API {
	return &API{pool: pool}
}

// Close releases the pool.
func (a *API) Close() {
	a.pool.Close()
}

// buildWhere renders f as a WHERE clause. Eq columns are emitted in sorted
// order so generated SQL is deterministic.
func buildWhere(f remote.Filter, argOffset int) (string, []any) {
	var conds []string
	var args []any
	n := argOffset

	keys := make([]string, 0, len(f.Eq))
	for k := range f.Eq {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		n++
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), n))
		args = append(args, f.Eq[k])
	}
	if f.UpdatedAfter != nil {
		n++
		conds = append(conds, fmt.Sprintf("updated_at > $%d", n))
		args = append(args, *f.UpdatedAfter)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (a *API) Select(ctx context.Context, table string, f remote.Filter) ([]remote.Row, error) {
	query := "SELECT * FROM " + pgx.Identifier{table}.Sanitize()
	where, args := buildWhere(f, 0)
	query += where
	if f.OrderBy != "" {
		query += " ORDER BY " + pgx.Identifier{f.OrderBy}.Sanitize()
		if f.Descending {
			query += " DESC"
		}
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []remote.Row
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(err)
		}
		row := make(remote.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (a *API) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) error {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	var sets []string
	for i, c := range cols {
		names[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[c]
		if c != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", names[i], names[i]))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
		pgx.Identifier{conflictKey}.Sanitize(),
		strings.Join(sets, ", "))

	if _, err := a.pool.Exec(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *API) Update(ctx context.Context, table string, patch remote.Row, f remote.Filter) error {
	cols := make([]string, 0, len(patch))
	for c := range patch {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
		args[i] = patch[c]
	}

	where, whereArgs := buildWhere(f, len(cols))
	query := fmt.Sprintf("UPDATE %s SET %s%s",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), where)

	if _, err := a.pool.Exec(ctx, query, append(args, whereArgs...)...); err != nil {
		return mapError(err)
	}
	return nil
}

func (a *API) Delete(ctx context.Context, table string, f remote.Filter) error {
	where, args := buildWhere(f, 0)
	query := "DELETE FROM " + pgx.Identifier{table}.Sanitize() + where

	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return remote.NewError(remote.CodeNotFound, "no rows matched delete on %s", table)
	}
	return nil
}

// mapError folds pgx failures into the remote error taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient privilege (e.g. RLS)
			return remote.NewError(remote.CodeUnauthorized, "%s", pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "23"): // integrity violations
			return remote.NewError(remote.CodeRejected, "%s", pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), // connection exceptions
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57"): // operator intervention
			return remote.NewError(remote.CodeUnavailable, "%s", pgErr.Message)
		default:
			return remote.NewError(remote.CodeInternal, "%s (%s)", pgErr.Message, pgErr.Code)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return remote.NewError(remote.CodeUnavailable, "%v", err)
	}
	// Anything else at this level is a broken connection.
	return remote.NewError(remote.CodeUnavailable, "%v", err)
}
