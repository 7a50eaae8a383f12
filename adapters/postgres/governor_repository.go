package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"sentinel/domain/core"
	"sentinel/ports"
)

// GovernorRepositoryImpl implements GovernorRepository for PostgreSQL.
// The governor state is a single row; id is always 1.
type GovernorRepositoryImpl struct {
	db *sqlx.DB
}

// NewGovernorRepository creates a new PostgreSQL governor store
func NewGovernorRepository(db *sqlx.DB) ports.GovernorRepository {
	return &GovernorRepositoryImpl{db: db}
}

// Save upserts the governor state row
func (r *GovernorRepositoryImpl) Save(ctx context.Context, st core.GovernorState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO governor_state (id, risk_score, regime, paused, last_reset)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			risk_score = EXCLUDED.risk_score,
			regime = EXCLUDED.regime,
			paused = EXCLUDED.paused,
			last_reset = EXCLUDED.last_reset`,
		st.RiskScore, st.Regime, st.Paused, st.LastReset)
	return err
}

// Load reads the governor state; a missing row yields a calm zero state.
func (r *GovernorRepositoryImpl) Load(ctx context.Context) (core.GovernorState, error) {
	var st core.GovernorState
	err := r.db.QueryRowContext(ctx, `
		SELECT risk_score, regime, paused, last_reset
		FROM governor_state WHERE id = 1`).Scan(
		&st.RiskScore, &st.Regime, &st.Paused, &st.LastReset)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GovernorState{Regime: core.RegimeCalm, LastReset: time.Now()}, nil
	}
	if err != nil {
		return core.GovernorState{}, err
	}
	return st, nil
}
