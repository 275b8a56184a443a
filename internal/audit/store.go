// Package audit persists the audit-safe view of guard decisions to
// PostgreSQL. Records carry rule ids, snippet hashes and scores; raw and
// sanitized text never reach the database.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Record is one persisted decision.
type Record struct {
	ID            int64          `db:"id"`
	RequestID     string         `db:"request_id"`
	PolicyID      string         `db:"policy_id"`
	TenantID      string         `db:"tenant_id"`
	Blocked       bool           `db:"blocked"`
	RiskScore     int            `db:"risk_score"`
	RuleIDs       pq.StringArray `db:"rule_ids"`
	SnippetHashes pq.StringArray `db:"snippet_hashes"`
	Anomalies     pq.StringArray `db:"anomalies"`
	LatencyMS     float64        `db:"latency_ms"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

const schema = `
CREATE TABLE IF NOT EXISTS guard_decisions (
	id             BIGSERIAL PRIMARY KEY,
	request_id     TEXT NOT NULL,
	policy_id      TEXT NOT NULL,
	tenant_id      TEXT NOT NULL DEFAULT '',
	blocked        BOOLEAN NOT NULL,
	risk_score     INTEGER NOT NULL,
	rule_ids       TEXT[] NOT NULL DEFAULT '{}',
	snippet_hashes TEXT[] NOT NULL DEFAULT '{}',
	anomalies      TEXT[] NOT NULL DEFAULT '{}',
	latency_ms     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS guard_decisions_created_at_idx ON guard_decisions (created_at);
CREATE INDEX IF NOT EXISTS guard_decisions_blocked_idx ON guard_decisions (blocked) WHERE blocked;
`

// Store handles audit persistence with PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the audit database and ensures the schema exists.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))
	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensuring audit schema: %w", err)
	}
	return nil
}

// Insert persists one decision record.
func (s *Store) Insert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO guard_decisions
			(request_id, policy_id, tenant_id, blocked, risk_score, rule_ids, snippet_hashes, anomalies, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		record.RequestID,
		record.PolicyID,
		record.TenantID,
		record.Blocked,
		record.RiskScore,
		record.RuleIDs,
		record.SnippetHashes,
		record.Anomalies,
		record.LatencyMS,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to insert audit record",
			zap.Error(err),
			zap.String("request_id", record.RequestID))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// RecentBlocked returns the latest blocked decisions, newest first.
func (s *Store) RecentBlocked(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	query := `
		SELECT * FROM guard_decisions
		WHERE blocked
		ORDER BY created_at DESC
		LIMIT $1`
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("querying blocked decisions: %w", err)
	}
	return records, nil
}

// Stats summarizes decisions since a point in time.
type Stats struct {
	Total      int64   `db:"total"`
	Blocked    int64   `db:"blocked"`
	AvgRisk    float64 `db:"avg_risk"`
	AvgLatency float64 `db:"avg_latency"`
}

// StatsSince aggregates decision counts for reporting.
func (s *Store) StatsSince(ctx context.Context, since time.Time) (*Stats, error) {
	var stats Stats
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE blocked) AS blocked,
			COALESCE(AVG(risk_score), 0) AS avg_risk,
			COALESCE(AVG(latency_ms), 0) AS avg_latency
		FROM guard_decisions
		WHERE created_at >= $1`
	if err := s.db.GetContext(ctx, &stats, query, since); err != nil {
		return nil, fmt.Errorf("querying decision stats: %w", err)
	}
	return &stats, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
