package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dodgybits/shuffle/internal/types"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tableSchema describes how an entity type maps onto its table.
// Every table has local_id and remote_id; columns lists the rest.
type tableSchema[E types.Entity] struct {
	name        string
	labelColumn string
	columns     []string

	// values returns the column values of e, in columns order.
	values func(e E) []any

	// scan reads local_id, remote_id and columns, in that order.
	scan func(s rowScanner) (E, error)

	// withLocalID returns e carrying the given local id.
	withLocalID func(e E, id types.ID) E
}

// Table provides sync gateway operations for one entity type.
type Table[E types.Entity] struct {
	db     *sql.DB
	schema tableSchema[E]

	selectSQL string
	insertSQL string
	updateSQL string
}

func newTable[E types.Entity](db *sql.DB, schema tableSchema[E]) *Table[E] {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schema.columns)+1), ", ")
	assignments := make([]string, len(schema.columns))
	for i, col := range schema.columns {
		assignments[i] = col + " = ?"
	}

	return &Table[E]{
		db:     db,
		schema: schema,
		selectSQL: fmt.Sprintf("SELECT local_id, remote_id, %s FROM %s",
			strings.Join(schema.columns, ", "), schema.name),
		insertSQL: fmt.Sprintf("INSERT INTO %s (remote_id, %s) VALUES (%s)",
			schema.name, strings.Join(schema.columns, ", "), placeholders),
		updateSQL: fmt.Sprintf("UPDATE %s SET remote_id = ?, %s",
			schema.name, strings.Join(assignments, ", ")),
	}
}

// Name returns the table name.
func (t *Table[E]) Name() string {
	return t.schema.name
}

// BulkInsert inserts entities in one transaction and returns them, in
// input order, with their assigned local ids.
func (t *Table[E]) BulkInsert(ctx context.Context, entities []E) ([]E, error) {
	if len(entities) == 0 {
		return []E{}, nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, t.insertSQL)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	persisted := make([]E, 0, len(entities))
	for i, e := range entities {
		args := append([]any{nullableID(e.Remote())}, t.schema.values(e)...)
		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, fmt.Errorf("insert %s %d: %w", t.schema.name, i, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get last insert id: %w", err)
		}
		persisted = append(persisted, t.schema.withLocalID(e, types.ID(id)))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return persisted, nil
}

// Update overwrites the row matching e's local id, or its remote id when
// e has no local id, and returns the stored row.
func (t *Table[E]) Update(ctx context.Context, e E) (E, error) {
	var zero E

	where, key := "local_id = ?", e.Local()
	if !key.IsSet() {
		where, key = "remote_id = ?", e.Remote()
	}
	if !key.IsSet() {
		return zero, ErrNoKey
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := append([]any{nullableID(e.Remote())}, t.schema.values(e)...)
	args = append(args, int64(key))
	result, err := tx.ExecContext(ctx, t.updateSQL+" WHERE "+where, args...)
	if err != nil {
		return zero, fmt.Errorf("update %s: %w", t.schema.name, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return zero, fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return zero, ErrNotFound
	}

	stored, err := t.getWhere(ctx, tx, where, int64(key))
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("commit transaction: %w", err)
	}
	return stored, nil
}

// UpdateRemoteID stamps remoteID onto the row with localID, leaving every
// other column untouched. Both ids must be set.
func (t *Table[E]) UpdateRemoteID(ctx context.Context, localID, remoteID types.ID) error {
	if !localID.IsSet() || !remoteID.IsSet() {
		return ErrNoKey
	}
	result, err := t.db.ExecContext(ctx,
		"UPDATE "+t.schema.name+" SET remote_id = ? WHERE local_id = ?",
		nullableID(remoteID), int64(localID))
	if err != nil {
		return fmt.Errorf("update remote id: %w", err)
	}
	return requireAffected(result)
}

// DeletePermanently removes the row with remoteID.
// Returns ErrNotFound when no such row exists.
func (t *Table[E]) DeletePermanently(ctx context.Context, remoteID types.ID) error {
	result, err := t.db.ExecContext(ctx,
		"DELETE FROM "+t.schema.name+" WHERE remote_id = ?", int64(remoteID))
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.schema.name, err)
	}
	return requireAffected(result)
}

// FindByName returns rows whose label matches one of names, keyed by label.
// When several rows share a label the most recently inserted wins.
func (t *Table[E]) FindByName(ctx context.Context, names []string) (map[string]E, error) {
	found := make(map[string]E)
	if len(names) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	query := fmt.Sprintf("%s WHERE %s IN (%s) ORDER BY %s ASC, local_id ASC",
		t.selectSQL, t.schema.labelColumn, placeholders, t.schema.labelColumn)
	entities, err := t.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s by name: %w", t.schema.name, err)
	}
	for _, e := range entities {
		found[e.Label()] = e
	}
	return found, nil
}

// GetByRemoteID returns the row with remoteID.
func (t *Table[E]) GetByRemoteID(ctx context.Context, remoteID types.ID) (E, error) {
	return t.getWhere(ctx, t.db, "remote_id = ?", int64(remoteID))
}

// Get returns the row with localID.
func (t *Table[E]) Get(ctx context.Context, localID types.ID) (E, error) {
	return t.getWhere(ctx, t.db, "local_id = ?", int64(localID))
}

// List returns every row ordered by local id.
func (t *Table[E]) List(ctx context.Context) ([]E, error) {
	entities, err := t.query(ctx, t.selectSQL+" ORDER BY local_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.schema.name, err)
	}
	return entities, nil
}

// Count returns the number of rows.
func (t *Table[E]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.schema.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.schema.name, err)
	}
	return n, nil
}

func (t *Table[E]) getWhere(ctx context.Context, q queryer, where string, arg any) (E, error) {
	row := q.QueryRowContext(ctx, t.selectSQL+" WHERE "+where, arg)
	e, err := t.schema.scan(row)
	if err != nil {
		var zero E
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("scan %s: %w", t.schema.name, err)
	}
	return e, nil
}

func (t *Table[E]) query(ctx context.Context, query string, args ...any) ([]E, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]E, 0)
	for rows.Next() {
		e, err := t.schema.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entities, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// nullableID stores absent identifiers as NULL.
func nullableID(id types.ID) any {
	if !id.IsSet() {
		return nil
	}
	return int64(id)
}

func scanID(n sql.NullInt64) types.ID {
	if !n.Valid {
		return types.NoID
	}
	return types.ID(n.Int64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
