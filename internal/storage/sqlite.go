package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/user/sqeleton/internal/kv"
)

// scanPageSize bounds how many rows one Scan query materializes at a time.
const scanPageSize = 256

// SQLite is a Backend on a single ordered table. BLOB keys compare with
// memcmp, which gives the same ordering as the LSM backends.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at path.
func OpenSQLite(path string, noSync bool) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	syncMode := "NORMAL"
	if noSync {
		syncMode = "OFF"
	}
	return initSQLite(db, "PRAGMA journal_mode=WAL", "PRAGMA synchronous="+syncMode, "PRAGMA busy_timeout=5000")
}

// OpenSQLiteInMemory opens a private in-memory SQLite database.
func OpenSQLiteInMemory() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite in memory: %w", err)
	}
	return initSQLite(db)
}

func initSQLite(db *sql.DB, pragmas ...string) (*SQLite, error) {
	// One connection: an in-memory database is per-connection, and all
	// writes are serialized anyway.
	db.SetMaxOpenConns(1)
	stmts := append(pragmas,
		`CREATE TABLE IF NOT EXISTS kv (
			k BLOB PRIMARY KEY,
			v BLOB NOT NULL
		) WITHOUT ROWID`,
	)
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite %q: %w", stmt, err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Update(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn, false)
}

func (s *SQLite) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, fn, true)
}

func (s *SQLite) run(ctx context.Context, fn func(Tx) error, readOnly bool) error {
	// Started operations are not interruptible, so the transaction is not
	// bound to the caller's cancellation.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, readOnly: readOnly}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) Get(key []byte) ([]byte, error) {
	var v []byte
	err := t.tx.QueryRow("SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (t *sqliteTx) Set(key, val []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.Exec("INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", key, val)
	return err
}

func (t *sqliteTx) Delete(key []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.Exec("DELETE FROM kv WHERE k = ?", key)
	return err
}

type kvRow struct {
	k, v []byte
}

func (t *sqliteTx) Scan(prefix []byte, fn func(key, val []byte) (bool, error)) error {
	upper := kv.PrefixUpperBound(prefix)
	from := prefix
	inclusive := true
	for {
		rows, err := t.page(from, upper, inclusive)
		if err != nil {
			return err
		}
		for _, r := range rows {
			more, err := fn(r.k, r.v)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if len(rows) < scanPageSize {
			return nil
		}
		from = rows[len(rows)-1].k
		inclusive = false
	}
}

// page reads up to scanPageSize rows in [from, upper). The rows are fully
// read before returning so fn never runs while a cursor is open.
func (t *sqliteTx) page(from, upper []byte, inclusive bool) ([]kvRow, error) {
	op := ">"
	if inclusive {
		op = ">="
	}
	q := "SELECT k, v FROM kv WHERE k " + op + " ?"
	args := []any{from}
	if upper != nil {
		q += " AND k < ?"
		args = append(args, upper)
	}
	q += " ORDER BY k LIMIT ?"
	args = append(args, scanPageSize)

	rows, err := t.tx.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []kvRow
	for rows.Next() {
		var r kvRow
		if err := rows.Scan(&r.k, &r.v); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
