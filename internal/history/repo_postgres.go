package history

import (
	"context"
	"database/sql"
	"errors"

	"call-relay/pkg/utils"
)

// PostgresRepo persists records via database/sql (pgx stdlib driver).
//
// Assumed table:
//
//	CREATE TABLE call_history (
//	    id            TEXT PRIMARY KEY,
//	    call_id       TEXT NOT NULL,
//	    from_endpoint TEXT NOT NULL,
//	    to_endpoint   TEXT NOT NULL,
//	    source        TEXT NOT NULL,
//	    ended_state   TEXT NOT NULL,
//	    first_seen_at TIMESTAMPTZ NOT NULL,
//	    ended_at      TIMESTAMPTZ NOT NULL
//	);
//
// Insert-only; no update or delete paths exist.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, errors.New("history: db is required")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO call_history (id, call_id, from_endpoint, to_endpoint, source, ended_state, first_seen_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			rec.ID,
			rec.CallID,
			rec.From,
			rec.To,
			rec.Source,
			rec.EndedState,
			rec.FirstSeenAt,
			rec.EndedAt,
		)
		return err
	})
}
