package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"

	"github.com/randalmurphal/tasksync/internal/config"
	"github.com/randalmurphal/tasksync/internal/db/driver"
	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
	"github.com/randalmurphal/tasksync/internal/model"
)

// MirrorDB is the local mirror of the remote work tracker.
type MirrorDB struct {
	*DB
}

// OpenMirror opens and migrates the mirror database described by cfg.
func OpenMirror(ctx context.Context, cfg config.DatabaseConfig) (*MirrorDB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return migrateMirror(ctx, db)
}

// OpenMirrorInMemory opens a migrated in-memory mirror.
func OpenMirrorInMemory() (*MirrorDB, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, err
	}
	return migrateMirror(context.Background(), db)
}

// OpenMirrorForRead opens the mirror for a run that never writes, such as a
// dry run. It creates nothing: no migrations are applied, and a SQLite file
// that does not exist yet reads as an empty in-memory mirror.
func OpenMirrorForRead(ctx context.Context, cfg config.DatabaseConfig) (*MirrorDB, error) {
	dialect, err := driver.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dialect == driver.DialectSQLite {
		if _, err := os.Stat(cfg.Path); errors.Is(err, fs.ErrNotExist) {
			mem, err := OpenInMemory()
			if err != nil {
				return nil, err
			}
			return migrateMirror(ctx, mem)
		}
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &MirrorDB{DB: db}, nil
}

func migrateMirror(ctx context.Context, db *DB) (*MirrorDB, error) {
	if err := db.Migrate(ctx, "mirror"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate mirror db: %w", err)
	}
	return &MirrorDB{DB: db}, nil
}

// Upsert inserts or updates the row of kind k identified by remoteID.
// Only the registry columns present in fields are written, so a partial
// payload never clears columns it did not carry.
func (m *MirrorDB) Upsert(ctx context.Context, k model.Kind, remoteID string, fields map[string]any) (*model.Row, error) {
	if remoteID == "" {
		return nil, fmt.Errorf("upsert %s: empty remote id", k)
	}
	table, ok := model.Table[k]
	if !ok {
		return nil, fmt.Errorf("upsert: unknown kind %q", k)
	}

	cols := []string{"remote_id"}
	args := []any{remoteID}
	written := make(map[string]any, len(fields))
	for _, col := range model.Fields[k] {
		v, ok := fields[col]
		if !ok {
			continue
		}
		nv, err := columnValue(v)
		if err != nil {
			return nil, fmt.Errorf("upsert %s %s: column %s: %w", k, remoteID, col, err)
		}
		cols = append(cols, col)
		args = append(args, nv)
		written[col] = v
	}

	set := make([]string, 0, len(cols))
	for _, col := range cols[1:] {
		set = append(set, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	if len(set) == 0 {
		set = append(set, "remote_id = excluded.remote_id")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (remote_id) DO UPDATE SET %s RETURNING id",
		table, strings.Join(cols, ", "), driver.Placeholders(m.Driver(), 1, len(cols)), strings.Join(set, ", "),
	)

	var id int64
	if err := m.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("upsert %s %s: %w", k, remoteID, err)
	}
	return &model.Row{Kind: k, ID: id, RemoteID: remoteID, Fields: written}, nil
}

// Get returns the row of kind k with remoteID, or a STORE_NOT_FOUND error.
func (m *MirrorDB) Get(ctx context.Context, k model.Kind, remoteID string) (*model.Row, error) {
	table, ok := model.Table[k]
	if !ok {
		return nil, fmt.Errorf("get: unknown kind %q", k)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE remote_id = %s", selectColumns(k, ""), table, m.Placeholder(1))

	rows, err := m.QueryContext(ctx, query, remoteID)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", k, remoteID, err)
	}
	found, err := scanRows(k, rows)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", k, remoteID, err)
	}
	if len(found) == 0 {
		return nil, syncerrors.ErrStoreNotFound(string(k), remoteID)
	}
	return &found[0], nil
}

// Delete removes the row of kind k with remoteID. It reports whether a row
// existed; deleting a missing row is not an error.
func (m *MirrorDB) Delete(ctx context.Context, k model.Kind, remoteID string) (bool, error) {
	table, ok := model.Table[k]
	if !ok {
		return false, fmt.Errorf("delete: unknown kind %q", k)
	}
	res, err := m.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE remote_id = %s", table, m.Placeholder(1)), remoteID)
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", k, remoteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %s: %w", k, remoteID, err)
	}
	return n > 0, nil
}

// Filter lists rows of q.Kind, optionally restricted to those linked to
// q.RelatedID through q.Relation. Rows come back in local id order.
func (m *MirrorDB) Filter(ctx context.Context, q model.Query) ([]model.Row, error) {
	table, ok := model.Table[q.Kind]
	if !ok {
		return nil, fmt.Errorf("filter: unknown kind %q", q.Kind)
	}

	var query string
	var args []any
	if q.Relation == "" {
		query = fmt.Sprintf("SELECT %s FROM %s t ORDER BY t.id", selectColumns(q.Kind, "t."), table)
	} else {
		rel, ok := model.LookupRelation(q.Kind, q.Relation)
		if !ok {
			return nil, fmt.Errorf("filter %s: unknown relation %q", q.Kind, q.Relation)
		}
		query = fmt.Sprintf(
			"SELECT %s FROM %s t JOIN %s r ON r.%s = t.id WHERE r.%s = %s ORDER BY t.id",
			selectColumns(q.Kind, "t."), table, rel.Table, rel.OwnerColumn, rel.TargetColumn, m.Placeholder(1),
		)
		args = append(args, q.RelatedID)
	}

	rows, err := m.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", q.Kind, err)
	}
	found, err := scanRows(q.Kind, rows)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", q.Kind, err)
	}
	return found, nil
}

// SetRelation replaces the rel links of row with related.
func (m *MirrorDB) SetRelation(ctx context.Context, row *model.Row, rel string, related []model.Row) error {
	r, ok := model.LookupRelation(row.Kind, rel)
	if !ok {
		return fmt.Errorf("set relation: %s has no relation %q", row.Kind, rel)
	}
	return m.RunInTx(ctx, func(tx driver.Tx) error {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", r.Table, r.OwnerColumn, m.Placeholder(1))
		if _, err := tx.Exec(ctx, del, row.ID); err != nil {
			return fmt.Errorf("clear %s of %s %s: %w", rel, row.Kind, row.RemoteID, err)
		}
		for _, target := range related {
			if _, err := tx.Exec(ctx, m.linkQuery(r), row.ID, target.ID); err != nil {
				return fmt.Errorf("link %s %s to %s: %w", row.Kind, row.RemoteID, target.RemoteID, err)
			}
		}
		return nil
	})
}

// AddRelation links row to related through rel. Existing links are kept.
func (m *MirrorDB) AddRelation(ctx context.Context, row *model.Row, rel string, related *model.Row) error {
	r, ok := model.LookupRelation(row.Kind, rel)
	if !ok {
		return fmt.Errorf("add relation: %s has no relation %q", row.Kind, rel)
	}
	if _, err := m.ExecContext(ctx, m.linkQuery(r), row.ID, related.ID); err != nil {
		return fmt.Errorf("link %s %s to %s: %w", row.Kind, row.RemoteID, related.RemoteID, err)
	}
	return nil
}

func (m *MirrorDB) linkQuery(r model.Relation) string {
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s) ON CONFLICT DO NOTHING",
		r.Table, r.OwnerColumn, r.TargetColumn, driver.Placeholders(m.Driver(), 1, 2))
}

func selectColumns(k model.Kind, prefix string) string {
	cols := make([]string, 0, len(model.Fields[k])+2)
	cols = append(cols, prefix+"id", prefix+"remote_id")
	for _, f := range model.Fields[k] {
		cols = append(cols, prefix+f)
	}
	return strings.Join(cols, ", ")
}

func scanRows(k model.Kind, rows *sql.Rows) ([]model.Row, error) {
	defer func() { _ = rows.Close() }()

	fields := model.Fields[k]
	var out []model.Row
	for rows.Next() {
		var id int64
		var remoteID sql.NullString
		values := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+2)
		dest = append(dest, &id, &remoteID)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", k, err)
		}

		row := model.Row{Kind: k, ID: id, RemoteID: remoteID.String, Fields: make(map[string]any, len(fields))}
		for i, f := range fields {
			if b, ok := values[i].([]byte); ok {
				row.Fields[f] = string(b)
				continue
			}
			row.Fields[f] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", k, err)
	}
	return out, nil
}

// columnValue converts a decoded payload value into something every driver
// binds. Whole JSON numbers become int64; objects and arrays become JSON text.
func columnValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int, int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), nil
		}
		return x, nil
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// IsNotFound reports whether err is the store's not-found error.
func IsNotFound(err error) bool {
	return syncerrors.HasCode(err, syncerrors.CodeStoreNotFound)
}
