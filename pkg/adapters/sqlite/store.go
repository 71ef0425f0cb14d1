package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store implements ports.UOWStore on SQLite.
//
// Records are kept as JSON documents next to the indexed columns that routing
// queries filter on. Updates are compare-and-swap on the version column and
// share a transaction with the history insert.
type Store struct {
	db *sql.DB
}

var _ ports.UOWStore = (*Store)(nil)

// Open opens (or creates) a database at dsn using the pure-Go driver and
// applies the schema. SQLite allows one writer, so the pool is limited to a
// single connection; this also keeps ":memory:" databases coherent.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New initializes the schema in db and returns a store using it.
// The caller owns db.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, uow *domain.UOW, entry *domain.HistoryEntry) error {
	data, err := json.Marshal(uow)
	if err != nil {
		return fmt.Errorf("encode uow: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM uows WHERE id = ?`, uow.ID).Scan(&exists)
		if err == nil {
			return domain.ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO uows (id, parent_id, status, location, location_since, version, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uow.ID,
			nullable(uow.Parent()),
			string(uow.Status.Canonical()),
			uow.Location,
			uow.LocationSince.UnixNano(),
			uow.Version,
			string(data),
		)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *Store) Get(ctx context.Context, id string) (*domain.UOW, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM uows WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUOWNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeUOW(data)
}

func (s *Store) Update(ctx context.Context, uow *domain.UOW, expectedVersion int64, entry *domain.HistoryEntry) error {
	data, err := json.Marshal(uow)
	if err != nil {
		return fmt.Errorf("encode uow: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE uows
			SET parent_id = ?, status = ?, location = ?, location_since = ?, version = ?, data = ?
			WHERE id = ? AND version = ?`,
			nullable(uow.Parent()),
			string(uow.Status.Canonical()),
			uow.Location,
			uow.LocationSince.UnixNano(),
			uow.Version,
			string(data),
			uow.ID,
			expectedVersion,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM uows WHERE id = ?`, uow.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrUOWNotFound
			}
			if err != nil {
				return err
			}
			return domain.ErrVersionConflict
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *Store) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM uow_history WHERE uow_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.HistoryEntry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO uow_audit (uow_id, data) VALUES (?, ?)`, entry.UOWID, string(data))
	return err
}

func (s *Store) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM uow_audit WHERE uow_id = ? ORDER BY rowid_`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AuditEntry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.AuditEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*domain.UOW, error) {
	return s.list(ctx, `SELECT data FROM uows WHERE parent_id = ? ORDER BY location_since, id`, parentID)
}

func (s *Store) ListByStatus(ctx context.Context, status domain.Status, location string) ([]*domain.UOW, error) {
	st := string(status.Canonical())
	if location == "" {
		return s.list(ctx, `SELECT data FROM uows WHERE status = ? ORDER BY location_since, id`, st)
	}
	return s.list(ctx, `SELECT data FROM uows WHERE status = ? AND location = ? ORDER BY location_since, id`, st, location)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.UOW, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UOW
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		u, err := decodeUOW(data)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry *domain.HistoryEntry) error {
	if entry == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO uow_history (uow_id, seq, data) VALUES (?, ?, ?)`,
		entry.UOWID, entry.Seq, string(data))
	return err
}

func decodeUOW(data string) (*domain.UOW, error) {
	var u domain.UOW
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("decode uow: %w", err)
	}
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
