package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/storage"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	source TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	event_key INTEGER NOT NULL,
	partition_id INTEGER NOT NULL,
	date_time INTEGER NOT NULL,
	payload_json TEXT NOT NULL,
	UNIQUE(source, seq)
);

CREATE INDEX IF NOT EXISTS idx_entries_source_kind_seq ON entries(source, kind, seq);
CREATE INDEX IF NOT EXISTS idx_entries_source_partition_seq ON entries(source, partition_id, seq);

CREATE TRIGGER IF NOT EXISTS trg_entries_no_update
BEFORE UPDATE ON entries
BEGIN
	SELECT RAISE(ABORT, 'entries are append-only: UPDATE forbidden');
END;

CREATE TRIGGER IF NOT EXISTS trg_entries_no_delete
BEFORE DELETE ON entries
BEGIN
	SELECT RAISE(ABORT, 'entries are append-only: DELETE forbidden');
END;
`

var _ storage.Engine = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the event log at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir data dir: %w", err)
		}
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, entries []storage.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO entries(source, seq, kind, event_key, partition_id, date_time, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, seq) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		if !e.Kind.Valid() {
			return 0, fmt.Errorf("append seq %d: invalid kind %q", e.Seq, e.Kind)
		}
		res, err := stmt.ExecContext(ctx,
			e.Source, int64(e.Seq), string(e.Kind), int64(e.Key),
			e.Partition(), int64(e.DateTime), e.PayloadJSON)
		if err != nil {
			return 0, fmt.Errorf("append seq %d: %w", e.Seq, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) Scan(ctx context.Context, q storage.Query) ([]storage.Entry, error) {
	var (
		where = []string{"source = ?", "seq >= ?"}
		args  = []any{q.Source, int64(q.FromSeq)}
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Partition != nil {
		where = append(where, "partition_id = ?")
		args = append(args, *q.Partition)
	}
	query := fmt.Sprintf(`
SELECT source, seq, kind, event_key, date_time, payload_json
FROM entries
WHERE %s
ORDER BY seq ASC`, strings.Join(where, " AND "))
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Entry
	for rows.Next() {
		var (
			item          storage.Entry
			kind          string
			seq, key, dts int64
		)
		if err := rows.Scan(&item.Source, &seq, &kind, &key, &dts, &item.PayloadJSON); err != nil {
			return nil, err
		}
		item.Seq = uint64(seq)
		item.Kind = event.Kind(kind)
		item.Key = uint64(key)
		item.DateTime = uint64(dts)
		out = append(out, item)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries of kind, or of every kind when
// kind is empty.
func (s *Store) Count(ctx context.Context, kind event.Kind) (int64, error) {
	var n int64
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM entries WHERE kind = ?`, string(kind)).Scan(&n)
	}
	return n, err
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}
