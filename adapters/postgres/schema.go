package postgres

import (
	"github.com/jmoiron/sqlx"

	"sentinel/internal/errors"
)

// EnsureSchema creates the snapshot tables if they do not exist yet.
func EnsureSchema(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS detectors (
			name TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			interval_seconds BIGINT NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'inactive',
			always_run BOOLEAN NOT NULL DEFAULT FALSE,
			failures INT NOT NULL DEFAULT 0,
			run_count INT NOT NULL DEFAULT 0,
			last_run TIMESTAMPTZ,
			last_success TIMESTAMPTZ,
			last_error TEXT NOT NULL DEFAULT '',
			quarantined_at TIMESTAMPTZ,
			reliability DOUBLE PRECISION NOT NULL DEFAULT 0,
			demoted BOOLEAN NOT NULL DEFAULT FALSE,
			backups JSONB NOT NULL DEFAULT '[]',
			substituted_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id TEXT PRIMARY KEY,
			detector TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			market_type TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			consensus JSONB,
			alerted_at TIMESTAMPTZ
		)`,
		`ALTER TABLE findings ADD COLUMN IF NOT EXISTS alerted_at TIMESTAMPTZ`,
		`CREATE INDEX IF NOT EXISTS findings_ts_idx ON findings (ts DESC)`,
		`CREATE TABLE IF NOT EXISTS governor_state (
			id INT PRIMARY KEY DEFAULT 1,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			regime TEXT NOT NULL DEFAULT 'calm',
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			last_reset TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "schema migration failed")
		}
	}
	return nil
}
