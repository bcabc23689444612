package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/flowbase/orchestrator/graph"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a clustered Store backend for production deployments with
// multiple orchestrator processes sharing one thread namespace.
//
// DSN format: user:pass@tcp(host:3306)/dbname?parseTime=true
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// checkpoints table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// checkpoint_id and parent_checkpoint_id are BIGINT, not VARCHAR: spec §6's
// schema and its "latest checkpoint" definition are both in terms of the
// sequence number, not created_at, so "latest"/conflict detection can't tie
// when two checkpoints land in the same clock tick.
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id            VARCHAR(128) NOT NULL,
	checkpoint_id        BIGINT NOT NULL,
	parent_checkpoint_id BIGINT DEFAULT NULL,
	node_that_just_ran   VARCHAR(128) NOT NULL,
	state_json           JSON NOT NULL,
	created_at           DATETIME(6) NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id),
	KEY idx_thread_checkpoint (thread_id, checkpoint_id DESC)
) ENGINE=InnoDB;
`

func (s *MySQLStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, mysqlSchema)
	return err
}

func (s *MySQLStore) Put(ctx context.Context, cp graph.Checkpoint) error {
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
	err = tx.QueryRowContext(ctx, `
		SELECT checkpoint_id FROM checkpoints WHERE thread_id = ?
		ORDER BY checkpoint_id DESC LIMIT 1 FOR UPDATE`, cp.ThreadID,
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
		cp.ThreadID, seq, parentSeq, cp.NodeThatJustRan, stateJSON, cp.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	return tx.Commit()
}

func (s *MySQLStore) GetLatest(ctx context.Context, threadID string) (graph.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id DESC LIMIT 1`, threadID)
	return scanMySQLCheckpoint(row)
}

func (s *MySQLStore) Get(ctx context.Context, threadID, checkpointID string) (graph.Checkpoint, error) {
	seq, err := parseCheckpointSeq(checkpointID)
	if err != nil {
		return graph.Checkpoint{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, seq)
	return scanMySQLCheckpoint(row)
}

func (s *MySQLStore) List(ctx context.Context, threadID string) ([]graph.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_checkpoint_id, node_that_just_ran, state_json, created_at
		FROM checkpoints WHERE thread_id = ? ORDER BY checkpoint_id ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []graph.Checkpoint
	for rows.Next() {
		cp, err := scanMySQLCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *MySQLStore) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func scanMySQLCheckpoint(row scannable) (graph.Checkpoint, error) {
	var (
		cp        graph.Checkpoint
		seq       int64
		parentSeq sql.NullInt64
		stateJSON []byte
		createdAt time.Time
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
	cp.CreatedAt = createdAt
	return cp, nil
}
