package callstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlCalls holds the call header: everything in model.Call except the
// embedded transcript, which lives in its own table so turns can be
// appended without rewriting the parent row.
const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id                TEXT         PRIMARY KEY,
    agent_id          TEXT         NOT NULL,
    provider_id       TEXT         NOT NULL,
    from_e164         TEXT         NOT NULL,
    to_e164           TEXT         NOT NULL,
    direction         TEXT         NOT NULL,
    status            TEXT         NOT NULL,
    started_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    answered_at       TIMESTAMPTZ,
    ended_at          TIMESTAMPTZ,
    duration_sec      INTEGER      NOT NULL DEFAULT 0,
    provider_call_id  TEXT         NOT NULL DEFAULT '',
    recording_url     TEXT         NOT NULL DEFAULT '',
    outcome           TEXT         NOT NULL DEFAULT '',
    language          TEXT         NOT NULL DEFAULT '',
    profile           TEXT         NOT NULL DEFAULT '',
    interruptions     INTEGER      NOT NULL DEFAULT 0,
    fillers_played    INTEGER      NOT NULL DEFAULT 0,
    avg_sentiment     DOUBLE PRECISION NOT NULL DEFAULT 0,
    bottleneck_stage  TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_calls_agent_id ON calls (agent_id);
CREATE INDEX IF NOT EXISTS idx_calls_provider_call_id ON calls (provider_call_id);
CREATE INDEX IF NOT EXISTS idx_calls_status ON calls (status);
`

// ddlTurns holds the per-call transcript. turn_number is assigned once by
// AppendTurn and never rewritten; the primary key also doubles as the
// idempotency guard against a duplicate AppendTurn for the same turn.
const ddlTurns = `
CREATE TABLE IF NOT EXISTS call_turns (
    call_id           TEXT         NOT NULL REFERENCES calls (id) ON DELETE CASCADE,
    turn_number        INTEGER      NOT NULL,
    user_text         TEXT         NOT NULL DEFAULT '',
    agent_text        TEXT         NOT NULL DEFAULT '',
    stage             TEXT         NOT NULL DEFAULT '',
    profile           TEXT         NOT NULL DEFAULT '',
    objections        TEXT[]       NOT NULL DEFAULT '{}',
    applied_principle TEXT         NOT NULL DEFAULT '',
    language          TEXT         NOT NULL DEFAULT '',
    sentiment         DOUBLE PRECISION NOT NULL DEFAULT 0,
    filler_clip_id    TEXT         NOT NULL DEFAULT '',
    timestamp         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (call_id, turn_number)
);
`

// Migrate creates the callstore schema if it does not already exist. Safe
// to call on every process start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCalls, ddlTurns} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("callstore migrate: %w", err)
		}
	}
	return nil
}
