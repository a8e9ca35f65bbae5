// Package callstore is the durable Postgres-backed record of call
// lifecycle, transcript turns, metrics, and recording URL.
// Every write except CreateCall is off the call's real-time critical path:
// it is handed to a bounded, asynchronously-retried queue so a transient
// database hiccup never stalls audio processing.
package callstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicecore/callcore/internal/webhookidempotency"
	"github.com/voicecore/callcore/pkg/model"
)

// Store is the callstore's Postgres-backed implementation. All methods are
// safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	idem   *webhookidempotency.Tracker
	queue  *retryQueue
	logger *slog.Logger
}

// New creates a Store, establishes a connection pool at dsn, and runs
// Migrate to ensure the schema exists. Ping and Migrate both use a 5s
// startup deadline; callers typically invoke this once at process start.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("callstore: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("callstore: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("callstore: ping: %w", err)
	}

	if err := Migrate(pingCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("callstore: migrate: %w", err)
	}

	return &Store{
		pool:   pool,
		idem:   webhookidempotency.New(),
		queue:  newRetryQueue(logger),
		logger: logger,
	}, nil
}

// Close releases the connection pool and stops the background write queue.
// Call once at process shutdown.
func (s *Store) Close() error {
	_ = s.queue.close()
	s.pool.Close()
	return nil
}

// Ping is exposed for the internal/health readiness checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateCall inserts a new Call row. Unlike the other writes, this is
// synchronous: the call must exist in the store before any webhook or
// media-bridge attach can reference it.
func (s *Store) CreateCall(ctx context.Context, call model.Call) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (
			id, agent_id, provider_id, from_e164, to_e164, direction, status,
			started_at, provider_call_id, language, profile
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		call.ID, call.AgentID, call.ProviderID, call.FromE164, call.ToE164,
		string(call.Direction), string(call.Status), call.StartedAt,
		call.ProviderCallID, call.Language, call.Profile,
	)
	if err != nil {
		return fmt.Errorf("callstore: create call %q: %w", call.ID, err)
	}
	return nil
}

// TransitionStatus advances a Call's status. It is idempotent in two ways:
// a key-level dedup against exact re-deliveries (same callId, same status)
// and a monotonic check against the status enum's partial order, so an
// out-of-order or duplicate carrier webhook is always a no-op. The write
// itself runs asynchronously and does not block the caller.
func (s *Store) TransitionStatus(ctx context.Context, callID string, newStatus model.CallStatus, at time.Time) error {
	if s.idem.SeenBefore(webhookidempotency.StatusKey(callID, string(newStatus))) {
		return nil
	}

	s.queue.submit("TransitionStatus", func(ctx context.Context) error {
		return s.transitionStatusTx(ctx, callID, newStatus, at)
	})
	return nil
}

func (s *Store) transitionStatusTx(ctx context.Context, callID string, newStatus model.CallStatus, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStr string
	err = tx.QueryRow(ctx, `SELECT status FROM calls WHERE id = $1 FOR UPDATE`, callID).Scan(&currentStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("transition status: call %q not found", callID)
	}
	if err != nil {
		return fmt.Errorf("select current status: %w", err)
	}

	current := model.CallStatus(currentStr)
	if current.IsTerminal() || newStatus.Precedes(current) {
		return nil // stale or duplicate callback; no-op
	}

	setClauses := "status = $2"
	args := []any{callID, string(newStatus)}
	argN := 3

	if newStatus == model.CallAnswered {
		setClauses += fmt.Sprintf(", answered_at = $%d", argN)
		args = append(args, at)
		argN++
	}
	if newStatus.IsTerminal() {
		setClauses += fmt.Sprintf(", ended_at = $%d", argN)
		args = append(args, at)
		argN++
	}

	_, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE calls SET %s WHERE id = $1`, setClauses), args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return tx.Commit(ctx)
}

// AppendTurn inserts turn into a call's transcript. turn_number is the
// primary key alongside call_id, so a duplicate AppendTurn for an
// already-recorded turn number is a silent no-op (the "set exactly
// once" invariant). The write runs asynchronously.
func (s *Store) AppendTurn(ctx context.Context, callID string, turn model.Turn) error {
	s.queue.submit("AppendTurn", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO call_turns (
				call_id, turn_number, user_text, agent_text, stage, profile,
				objections, applied_principle, language, sentiment,
				filler_clip_id, timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (call_id, turn_number) DO NOTHING`,
			callID, turn.TurnNumber, turn.UserText, turn.AgentText, turn.Stage,
			turn.Profile, turn.Objections, turn.AppliedPrinciple, turn.Language,
			turn.Sentiment, turn.FillerClipID, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append turn %d for call %q: %w", turn.TurnNumber, callID, err)
		}
		return nil
	})
	return nil
}

// FinalizeCall sets a Call's terminal status, outcome, end time, duration,
// and final metrics snapshot in one write. Idempotent via the same
// monotonic-status check TransitionStatus uses.
func (s *Store) FinalizeCall(ctx context.Context, callID string, status model.CallStatus, outcome model.Outcome, endedAt time.Time, metrics model.CallMetrics) error {
	if !status.IsTerminal() {
		return fmt.Errorf("callstore: FinalizeCall requires a terminal status, got %q", status)
	}
	if s.idem.SeenBefore(webhookidempotency.StatusKey(callID, string(status))) {
		return nil
	}

	s.queue.submit("FinalizeCall", func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback(ctx)

		var startedAt time.Time
		var currentStr string
		err = tx.QueryRow(ctx, `SELECT started_at, status FROM calls WHERE id = $1 FOR UPDATE`, callID).Scan(&startedAt, &currentStr)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("finalize call: call %q not found", callID)
		}
		if err != nil {
			return fmt.Errorf("select call: %w", err)
		}
		if model.CallStatus(currentStr).IsTerminal() {
			return nil
		}

		duration := int(endedAt.Sub(startedAt).Seconds())
		_, err = tx.Exec(ctx, `
			UPDATE calls SET
				status = $2, outcome = $3, ended_at = $4, duration_sec = $5,
				interruptions = $6, fillers_played = $7, avg_sentiment = $8,
				bottleneck_stage = $9
			WHERE id = $1`,
			callID, string(status), string(outcome), endedAt, duration,
			metrics.Interruptions, metrics.FillersPlayed, metrics.AverageSentiment,
			metrics.BottleneckStage,
		)
		if err != nil {
			return fmt.Errorf("finalize call %q: %w", callID, err)
		}
		return tx.Commit(ctx)
	})
	return nil
}

// AttachRecording records a call's recording URL, once. Idempotent against
// re-delivered recording-status webhooks carrying the same URL.
func (s *Store) AttachRecording(ctx context.Context, callID, recordingURL string) error {
	if s.idem.SeenBefore(webhookidempotency.RecordingKey(callID, recordingURL)) {
		return nil
	}

	s.queue.submit("AttachRecording", func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			UPDATE calls SET recording_url = $2
			WHERE id = $1 AND recording_url = ''`,
			callID, recordingURL,
		)
		if err != nil {
			return fmt.Errorf("attach recording for call %q: %w", callID, err)
		}
		return nil
	})
	return nil
}

// GetCall loads a Call header (without its transcript) by ID. Used by the
// signaling router and health checks; not part of the real-time write path.
func (s *Store) GetCall(ctx context.Context, callID string) (model.Call, error) {
	var c model.Call
	var direction, status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, provider_id, from_e164, to_e164, direction, status,
			started_at, answered_at, ended_at, duration_sec, provider_call_id,
			recording_url, outcome, language, profile, interruptions,
			fillers_played, avg_sentiment, bottleneck_stage
		FROM calls WHERE id = $1`, callID).Scan(
		&c.ID, &c.AgentID, &c.ProviderID, &c.FromE164, &c.ToE164, &direction, &status,
		&c.StartedAt, &c.AnsweredAt, &c.EndedAt, &c.DurationSec, &c.ProviderCallID,
		&c.RecordingURL, &c.Outcome, &c.Language, &c.Profile, &c.Metrics.Interruptions,
		&c.Metrics.FillersPlayed, &c.Metrics.AverageSentiment, &c.Metrics.BottleneckStage,
	)
	if err != nil {
		return model.Call{}, fmt.Errorf("callstore: get call %q: %w", callID, err)
	}
	c.Direction = model.Direction(direction)
	c.Status = model.CallStatus(status)
	return c, nil
}

// GetCallByProviderCallID resolves the internal call ID for a carrier
// status callback, which identifies calls by the carrier's own ID.
func (s *Store) GetCallByProviderCallID(ctx context.Context, providerCallID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM calls WHERE provider_call_id = $1`, providerCallID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("callstore: lookup by provider call id %q: %w", providerCallID, err)
	}
	return id, nil
}
