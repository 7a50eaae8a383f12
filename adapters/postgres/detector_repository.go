package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"sentinel/domain/core"
	"sentinel/ports"
)

// DetectorRepositoryImpl implements DetectorRepository for PostgreSQL
type DetectorRepositoryImpl struct {
	db *sqlx.DB
}

// NewDetectorRepository creates a new PostgreSQL detector snapshot store
func NewDetectorRepository(db *sqlx.DB) ports.DetectorRepository {
	return &DetectorRepositoryImpl{db: db}
}

// SaveSnapshot upserts one detector's state
func (r *DetectorRepositoryImpl) SaveSnapshot(ctx context.Context, det core.Detector) error {
	backupsJSON, _ := json.Marshal(det.Backups)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO detectors (
			name, category, interval_seconds, state, always_run,
			failures, run_count, last_run, last_success, last_error,
			quarantined_at, reliability, demoted, backups, substituted_by, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			interval_seconds = EXCLUDED.interval_seconds,
			state = EXCLUDED.state,
			always_run = EXCLUDED.always_run,
			failures = EXCLUDED.failures,
			run_count = EXCLUDED.run_count,
			last_run = EXCLUDED.last_run,
			last_success = EXCLUDED.last_success,
			last_error = EXCLUDED.last_error,
			quarantined_at = EXCLUDED.quarantined_at,
			reliability = EXCLUDED.reliability,
			demoted = EXCLUDED.demoted,
			backups = EXCLUDED.backups,
			substituted_by = EXCLUDED.substituted_by,
			updated_at = NOW()`,
		det.Name, det.Category, int64(det.Interval/time.Second), string(det.State), det.AlwaysRun,
		det.Failures, det.RunCount, nullTime(det.LastRun), nullTime(det.LastSuccess), det.LastError,
		nullTime(det.QuarantinedAt), det.Reliability, det.Demoted, backupsJSON, det.SubstitutedBy)
	return err
}

// LoadAll returns every persisted detector snapshot
func (r *DetectorRepositoryImpl) LoadAll(ctx context.Context) ([]core.Detector, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, category, interval_seconds, state, always_run,
		       failures, run_count, last_run, last_success, last_error,
		       quarantined_at, reliability, demoted, backups, substituted_by
		FROM detectors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Detector
	for rows.Next() {
		var det core.Detector
		var intervalSeconds int64
		var state string
		var lastRun, lastSuccess, quarantinedAt sql.NullTime
		var backupsJSON []byte

		if err := rows.Scan(
			&det.Name, &det.Category, &intervalSeconds, &state, &det.AlwaysRun,
			&det.Failures, &det.RunCount, &lastRun, &lastSuccess, &det.LastError,
			&quarantinedAt, &det.Reliability, &det.Demoted, &backupsJSON, &det.SubstitutedBy,
		); err != nil {
			return nil, err
		}

		det.Interval = time.Duration(intervalSeconds) * time.Second
		det.State = core.DetectorState(state)
		det.LastRun = lastRun.Time
		det.LastSuccess = lastSuccess.Time
		det.QuarantinedAt = quarantinedAt.Time
		_ = json.Unmarshal(backupsJSON, &det.Backups)
		out = append(out, det)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
