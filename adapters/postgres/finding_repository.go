package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"sentinel/domain/core"
	"sentinel/ports"
)

// FindingRepositoryImpl implements FindingRepository for PostgreSQL
type FindingRepositoryImpl struct {
	db *sqlx.DB
}

// NewFindingRepository creates a new PostgreSQL finding store
func NewFindingRepository(db *sqlx.DB) ports.FindingRepository {
	return &FindingRepositoryImpl{db: db}
}

// Save upserts a finding including its consensus (when present)
func (r *FindingRepositoryImpl) Save(ctx context.Context, f core.Finding) error {
	metadataJSON, _ := json.Marshal(f.Metadata)
	var consensusJSON interface{}
	if f.Consensus != nil {
		consensusJSON, _ = json.Marshal(f.Consensus)
	}
	var alertedAt *time.Time
	if !f.AlertedAt.IsZero() {
		alertedAt = &f.AlertedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO findings (
			id, detector, title, description, severity, confidence,
			symbol, market_type, ts, metadata, consensus, alerted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			metadata = EXCLUDED.metadata,
			consensus = EXCLUDED.consensus,
			alerted_at = COALESCE(findings.alerted_at, EXCLUDED.alerted_at)`,
		f.ID.String(), f.Detector, f.Title, f.Description, string(f.Severity), f.Confidence,
		f.Symbol, f.MarketType, f.Timestamp, metadataJSON, consensusJSON, alertedAt)
	return err
}

// Get retrieves a finding by id
func (r *FindingRepositoryImpl) Get(ctx context.Context, id core.FindingID) (core.Finding, error) {
	var f core.Finding
	var fid, severity string
	var metadataJSON []byte
	var consensusJSON []byte
	var alertedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, detector, title, description, severity, confidence,
		       symbol, market_type, ts, metadata, consensus, alerted_at
		FROM findings WHERE id = $1`, id.String()).Scan(
		&fid, &f.Detector, &f.Title, &f.Description, &severity, &f.Confidence,
		&f.Symbol, &f.MarketType, &f.Timestamp, &metadataJSON, &consensusJSON, &alertedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Finding{}, core.ErrFindingNotFound
	}
	if err != nil {
		return core.Finding{}, err
	}

	f.ID = core.FindingID(fid)
	f.Severity = core.Severity(severity)
	if alertedAt.Valid {
		f.AlertedAt = alertedAt.Time
	}
	_ = json.Unmarshal(metadataJSON, &f.Metadata)
	if len(consensusJSON) > 0 {
		var c core.ConsensusResult
		if err := json.Unmarshal(consensusJSON, &c); err == nil {
			f.Consensus = &c
		}
	}
	return f, nil
}

// SaveConsensus stores the consensus result for an existing finding
func (r *FindingRepositoryImpl) SaveConsensus(ctx context.Context, id core.FindingID, c core.ConsensusResult) error {
	consensusJSON, _ := json.Marshal(c)
	res, err := r.db.ExecContext(ctx,
		`UPDATE findings SET consensus = $2 WHERE id = $1`, id.String(), consensusJSON)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrFindingNotFound
	}
	return nil
}

// Summary aggregates consensus outcomes over the most recent analyzed findings
func (r *FindingRepositoryImpl) Summary(ctx context.Context, limit int) (ports.TriageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT consensus->>'action', alerted_at IS NOT NULL
		FROM findings
		WHERE consensus IS NOT NULL
		ORDER BY ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return ports.TriageSummary{}, err
	}
	defer rows.Close()

	var summary ports.TriageSummary
	for rows.Next() {
		var action string
		var alerted bool
		if err := rows.Scan(&action, &alerted); err != nil {
			return ports.TriageSummary{}, err
		}
		summary.TotalAnalyzed++
		switch core.VoteAction(action) {
		case core.ActionAct:
			summary.Act++
		case core.ActionIgnore:
			summary.Ignore++
		default:
			summary.Watch++
		}
		if alerted {
			summary.Alerted++
		}
	}
	return summary, rows.Err()
}
