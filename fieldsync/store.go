package fieldsync

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the durable local operation queue. It is a single sqlite file
// so queued mutations survive the owning process being killed between
// enqueue and drain. Iteration order is insertion order (rowid).
type Store struct {
	db *sql.DB
}

// OpenStore opens (and creates if needed) the queue database under dataDir.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "fieldsync.db")

	// modernc.org/sqlite: pure Go, no CGO.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_operations (
			id          TEXT PRIMARY KEY,
			entity      TEXT NOT NULL,
			kind        TEXT NOT NULL,
			payload     BLOB,
			enqueued_at TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error  TEXT
		);
	`); err != nil {
		return nil, fmt.Errorf("failed to create queue table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue appends an operation and returns its id, generating one when the
// caller did not. Ids are stable across retries.
func (s *Store) Enqueue(op *QueuedOperation) (string, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO queued_operations (id, entity, kind, payload, enqueued_at, retry_count, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Entity, string(op.Kind), []byte(op.Payload),
		op.EnqueuedAt.Format(time.RFC3339Nano), op.RetryCount, op.LastError,
	)
	if err != nil {
		return "", err
	}
	return op.ID, nil
}

// ListAll returns every queued operation in insertion order.
func (s *Store) ListAll() ([]QueuedOperation, error) {
	rows, err := s.db.Query(
		`SELECT id, entity, kind, payload, enqueued_at, retry_count, last_error
		 FROM queued_operations ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []QueuedOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// Get returns one operation by id, or nil when absent.
func (s *Store) Get(id string) (*QueuedOperation, error) {
	row := s.db.QueryRow(
		`SELECT id, entity, kind, payload, enqueued_at, retry_count, last_error
		 FROM queued_operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Update patches retry metadata for one operation.
func (s *Store) Update(id string, retryCount int, lastError *string) error {
	res, err := s.db.Exec(
		`UPDATE queued_operations SET retry_count = ?, last_error = ? WHERE id = ?`,
		retryCount, lastError, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("operation %s not found", id)
	}
	return nil
}

func (s *Store) Remove(id string) error {
	_, err := s.db.Exec(`DELETE FROM queued_operations WHERE id = ?`, id)
	return err
}

// PendingCount is the number of operations still eligible for automatic
// replay, i.e. below the retry ceiling. Surfaced to the UI.
func (s *Store) PendingCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM queued_operations WHERE retry_count < ?`, RetryCeiling).
		Scan(&count)
	return count, err
}

// FailedOperations returns operations at or beyond the retry ceiling.
func (s *Store) FailedOperations() ([]QueuedOperation, error) {
	rows, err := s.db.Query(
		`SELECT id, entity, kind, payload, enqueued_at, retry_count, last_error
		 FROM queued_operations WHERE retry_count >= ? ORDER BY rowid`, RetryCeiling)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []QueuedOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// ClearFailed deletes every operation at or beyond the retry ceiling and
// returns how many were removed.
func (s *Store) ClearFailed() (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM queued_operations WHERE retry_count >= ?`, RetryCeiling)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*QueuedOperation, error) {
	var op QueuedOperation
	var kind, enqueuedAt string
	var payload []byte
	if err := row.Scan(&op.ID, &op.Entity, &kind, &payload, &enqueuedAt, &op.RetryCount, &op.LastError); err != nil {
		return nil, err
	}
	op.Kind = OperationKind(kind)
	op.Payload = payload
	t, err := time.Parse(time.RFC3339Nano, enqueuedAt)
	if err != nil {
		return nil, fmt.Errorf("corrupt enqueued_at for %s: %w", op.ID, err)
	}
	op.EnqueuedAt = t
	return &op, nil
}
