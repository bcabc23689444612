package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/flowbase/orchestrator/graph"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file Store, suited to local development and
// single-node deployments. It enables WAL mode so readers (the replay/
// debugging API) don't block the writer.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes writes; SQLite allows one writer at a time
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed Store at
// path. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// checkpoint_id and parent_checkpoint_id are stored as INTEGER, not TEXT:
// spec §6 calls for `checkpoint_id BIGINT` and an index on
// (thread_id, checkpoint_id DESC) so "latest" is the thread's highest
// sequence number, never a wall-clock comparison that two checkpoints
// written in the same tick could tie on.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id              TEXT NOT NULL,
	checkpoint_id           INTEGER NOT NULL,
	parent_checkpoint_id    INTEGER,
	node_that_just_ran      TEXT NOT NULL,
	state_json              BLOB NOT NULL,
	created_at              TEXT NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_checkpoint
	ON checkpoints (thread_id, checkpoint_id DESC);
`

func (s *SQLiteStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, cp graph.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := parseCheckpointSeq(cp.CheckpointID)
	if err != nil {
		return err
	}
	parentSeq, err := parseOptionalCheckpointSeq(cp.ParentCheckpointID)
	if err != nil {
		return err
	}

	var newest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT checkpoint_id FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id DESC LIMIT 1`,
		cp.ThreadID,
	).Scan(&newest)
	switch {
	case err == sql.ErrNoRows:
		if parentSeq.Valid {
			return ErrConflict
		}
	case err != nil:
		return fmt.Errorf("query newest: %w", err)
	default:
		if newest != parentSeq {
			return ErrConflict
		}
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints
			(thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ThreadID, seq, parentSeq, cp.NodeThatJustRan, stateJSON,
		cp.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetLatest(ctx context.Context, threadID string) (graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id DESC LIMIT 1`, threadID)
	return scanCheckpoint(row)
}

func (s *SQLiteStore) Get(ctx context.Context, threadID, checkpointID string) (graph.Checkpoint, error) {
	seq, err := parseCheckpointSeq(checkpointID)
	if err != nil {
		return graph.Checkpoint{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, seq)
	return scanCheckpoint(row)
}

func (s *SQLiteStore) List(ctx context.Context, threadID string) ([]graph.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []graph.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpointRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scannable) (graph.Checkpoint, error) {
	return scanRow(row)
}

func scanCheckpointRows(rows *sql.Rows) (graph.Checkpoint, error) {
	return scanRow(rows)
}

func scanRow(row scannable) (graph.Checkpoint, error) {
	var (
		cp        graph.Checkpoint
		seq       int64
		parentSeq sql.NullInt64
		stateJSON []byte
		createdAt string
	)
	err := row.Scan(&cp.ThreadID, &seq, &parentSeq, &cp.NodeThatJustRan, &stateJSON, &createdAt)
	if err == sql.ErrNoRows {
		return graph.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return graph.Checkpoint{}, fmt.Errorf("scan checkpoint: %w", err)
	}
	cp.CheckpointID = strconv.FormatInt(seq, 10)
	if parentSeq.Valid {
		cp.ParentCheckpointID = strconv.FormatInt(parentSeq.Int64, 10)
	}
	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return graph.Checkpoint{}, fmt.Errorf("unmarshal state: %w", err)
	}
	cp.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return graph.Checkpoint{}, fmt.Errorf("parse created_at: %w", err)
	}
	return cp, nil
}

// parseCheckpointSeq parses a required checkpoint_id (a decimal string,
// per graph.nextCheckpointID) into the integer form the checkpoints table
// stores it in.
func parseCheckpointSeq(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint id %q: %w", id, err)
	}
	return n, nil
}

// parseOptionalCheckpointSeq is parseCheckpointSeq for parent_checkpoint_id,
// which is empty for a thread's first checkpoint and stored as SQL NULL.
func parseOptionalCheckpointSeq(id string) (sql.NullInt64, error) {
	if id == "" {
		return sql.NullInt64{}, nil
	}
	n, err := parseCheckpointSeq(id)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}
