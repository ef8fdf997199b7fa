package backup

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore persists snapshots in a local SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

type snapshotRow struct {
	Key         string         `db:"key"`
	SearchID    string         `db:"search_id"`
	Document    string         `db:"document"`
	CreatedAt   string         `db:"created_at"`
	DeliveredAt sql.NullString `db:"delivered_at"`
}

// Open connects to the database at path, creating parent directories, and
// applies pending migrations.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("backup: create data dir: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("backup: connect: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("backup: set migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("backup: apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("backup: close: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if err := snap.validate(); err != nil {
		return err
	}
	snap.Timestamp = snap.Timestamp.UTC()
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("backup: encode %s: %w", snap.Key(), err)
	}

	const query = `
		INSERT INTO snapshots (key, search_id, document, created_at, delivered_at)
		VALUES (?, ?, ?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET document = excluded.document, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, query, snap.Key(), snap.SearchID, string(doc), formatTime(snap.Timestamp)); err != nil {
		return fmt.Errorf("backup: save %s: %w", snap.Key(), err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, searchID string) (Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `SELECT key, search_id, document, created_at, delivered_at FROM snapshots WHERE key = ?`, Key(searchID))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("backup: get %s: %w", Key(searchID), err)
	}
	return row.snapshot()
}

// List implements Store, newest first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Snapshot, error) {
	query := `SELECT key, search_id, document, created_at, delivered_at FROM snapshots`
	if opts.UndeliveredOnly {
		query += ` WHERE delivered_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, search_id DESC`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// MarkDelivered implements Store.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, searchID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE snapshots SET delivered_at = ? WHERE key = ?`, formatTime(at.UTC()), Key(searchID))
	if err != nil {
		return fmt.Errorf("backup: mark delivered %s: %w", Key(searchID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r snapshotRow) snapshot() (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(r.Document), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("backup: decode %s: %w", r.Key, err)
	}
	if snap.SearchID == "" {
		snap.SearchID = r.SearchID
	}
	if r.DeliveredAt.Valid {
		at, err := time.Parse(timeLayout, r.DeliveredAt.String)
		if err != nil {
			return Snapshot{}, fmt.Errorf("backup: decode %s delivered_at: %w", r.Key, err)
		}
		snap.DeliveredAt = &at
	}
	return snap, nil
}

// timeLayout has fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
