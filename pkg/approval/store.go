package approval

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbase/orchestrator/graph"
)

//go:embed migrations
var migrationsFS embed.FS

// PgxStore is the production Store, backed by Postgres via pgx (DESIGN.md:
// grounded on codeready-toolchain-tarsy's pkg/database/client.go migration
// bootstrap, adapted from Ent+pgx-as-sql-driver to a plain pgxpool).
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore connects to dsn, applies embedded migrations, and returns a
// ready Store. migrationDB is a *database/sql.DB opened against the same
// dsn purely to drive golang-migrate, which speaks database/sql rather than
// pgx's native pool interface; it is closed before returning, independent
// of the pgxpool connection used for runtime queries.
func NewPgxStore(ctx context.Context, dsn string) (*PgxStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("approval: connecting to store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("approval: pinging store: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("approval: running migrations: %w", err)
	}

	return &PgxStore{pool: pool}, nil
}

func runMigrations(dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Do not call m.Close(): that closes the driver, which closes db, which
	// here is our own short-lived connection rather than a shared pool, so
	// it is safe — but we close sourceDriver explicitly and let db's defer
	// handle the rest, matching the pattern the client.go grounding uses to
	// avoid double-closing a connection another component still owns.
	return sourceDriver.Close()
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxStore) Insert(ctx context.Context, req Request) error {
	opJSON, err := json.Marshal(req.PendingOperation)
	if err != nil {
		return fmt.Errorf("marshalling pending_operation: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO approval_requests (
			request_id, workflow_id, thread_id, checkpoint_id, agent_name,
			risk_level, pending_operation, status, created_at,
			resolver_identity, rejection_reason, external_issue_id,
			external_issue_url, external_pr_number
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14)
	`,
		req.RequestID, req.WorkflowID, req.ThreadID, req.CheckpointID, req.AgentName,
		string(req.RiskLevel), opJSON, string(req.Status), req.CreatedAt,
		req.ResolverIdentity, req.RejectionReason, req.ExternalIssueID,
		req.ExternalIssueURL, req.ExternalPRNumber,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgxStore) GetByWorkflowCheckpoint(ctx context.Context, workflowID, checkpointID string) (Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, workflow_id, thread_id, checkpoint_id, agent_name,
		       risk_level, pending_operation, status, created_at, resolved_at,
		       resolver_identity, rejection_reason, COALESCE(external_issue_id, ''),
		       external_issue_url, external_pr_number
		FROM approval_requests WHERE workflow_id = $1 AND checkpoint_id = $2
	`, workflowID, checkpointID)
	return scanRequest(row)
}

func (s *PgxStore) GetByID(ctx context.Context, requestID string) (Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, workflow_id, thread_id, checkpoint_id, agent_name,
		       risk_level, pending_operation, status, created_at, resolved_at,
		       resolver_identity, rejection_reason, COALESCE(external_issue_id, ''),
		       external_issue_url, external_pr_number
		FROM approval_requests WHERE request_id = $1
	`, requestID)
	return scanRequest(row)
}

func (s *PgxStore) GetByExternalIssueID(ctx context.Context, externalIssueID string) (Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, workflow_id, thread_id, checkpoint_id, agent_name,
		       risk_level, pending_operation, status, created_at, resolved_at,
		       resolver_identity, rejection_reason, COALESCE(external_issue_id, ''),
		       external_issue_url, external_pr_number
		FROM approval_requests WHERE external_issue_id = $1
	`, externalIssueID)
	return scanRequest(row)
}

func (s *PgxStore) Update(ctx context.Context, req Request) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests SET
			status = $1, resolved_at = $2, resolver_identity = $3,
			rejection_reason = $4, external_issue_id = NULLIF($5,''),
			external_issue_url = $6, external_pr_number = $7
		WHERE request_id = $8
	`,
		string(req.Status), req.ResolvedAt, req.ResolverIdentity, req.RejectionReason,
		req.ExternalIssueID, req.ExternalIssueURL, req.ExternalPRNumber, req.RequestID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgxStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, workflow_id, thread_id, checkpoint_id, agent_name,
		       risk_level, pending_operation, status, created_at, resolved_at,
		       resolver_identity, rejection_reason, COALESCE(external_issue_id, ''),
		       external_issue_url, external_pr_number
		FROM approval_requests WHERE status = 'pending' AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *PgxStore) CountByStatus(ctx context.Context, status Status) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM approval_requests WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var req Request
	var riskLevel, status string
	var opJSON []byte

	err := row.Scan(
		&req.RequestID, &req.WorkflowID, &req.ThreadID, &req.CheckpointID, &req.AgentName,
		&riskLevel, &opJSON, &status, &req.CreatedAt, &req.ResolvedAt,
		&req.ResolverIdentity, &req.RejectionReason, &req.ExternalIssueID,
		&req.ExternalIssueURL, &req.ExternalPRNumber,
	)
	if err != nil {
		return Request{}, mapPgError(err)
	}

	req.RiskLevel = graph.RiskLevel(riskLevel)
	req.Status = Status(status)
	if err := json.Unmarshal(opJSON, &req.PendingOperation); err != nil {
		return Request{}, fmt.Errorf("unmarshalling pending_operation: %w", err)
	}
	return req, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	// pgx surfaces "no rows in result set" for QueryRow misses, and unique
	// violations for the external_issue_id constraint; both get mapped to
	// the package's own sentinels rather than leaking a pgx-specific type.
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, stdsql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateExternalIssue
	}
	return err
}
