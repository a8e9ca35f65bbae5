// Package latency records the per-call timing ledger used to compute
// response latency and classify the call's bottleneck stage.
package latency

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voicecore/callcore/internal/observe"
)

// Stage names the timestamps a Tracker records.
type Stage string

const (
	StageCallStart          Stage = "callStart"
	StageWSOpen             Stage = "wsOpen"
	StageSessionReady       Stage = "sessionReady"
	StageFirstOutboundAudio Stage = "firstOutboundAudio"
	StageUserSpeechDetected Stage = "userSpeechDetected"
	StageResponseStart      Stage = "responseStart"
	StageFirstResponseAudio Stage = "firstResponseAudio"
)

// BottleneckStage is the coarser classification used for
// Call.Metrics.BottleneckStage: argmax over {wsConnect, sessionConnect,
// firstAudio, response}.
type BottleneckStage string

const (
	BottleneckWSConnect      BottleneckStage = "wsConnect"
	BottleneckSessionConnect BottleneckStage = "sessionConnect"
	BottleneckFirstAudio     BottleneckStage = "firstAudio"
	BottleneckResponse       BottleneckStage = "response"
	BottleneckNone           BottleneckStage = ""
)

// Tracker is a per-call timestamp ledger. Create one when a Call starts;
// it is not safe for use beyond a single call's lifetime, and its Mark
// calls are expected from the call's own goroutines (the mutex guards
// against incidental cross-goroutine reads, e.g. a metrics exporter).
type Tracker struct {
	mu     sync.Mutex
	callID string
	marks  map[Stage]time.Time

	span    trace.Span
	latency metric.Float64Histogram
}

// New creates a Tracker for callID, starting an OTel span that stays open
// for the lifetime of the call; callers must invoke Finish when the call
// ends to close the span.
func New(ctx context.Context, callID string) (*Tracker, context.Context) {
	spanCtx, span := observe.StartSpan(ctx, "call.latency", trace.WithAttributes(
		attribute.String("call_id", callID),
	))
	t := &Tracker{
		callID: callID,
		marks:  make(map[Stage]time.Time),
		span:   span,
	}
	t.latency = observe.DefaultMetrics().ResponseLatency
	t.Mark(StageCallStart)
	return t, spanCtx
}

// Mark records the current time for stage, unless it was already recorded
// (each stage is set exactly once per call). It also emits an OTel span
// event so the stage timeline is visible alongside distributed traces.
func (t *Tracker) Mark(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.marks[stage]; ok {
		return
	}
	now := time.Now()
	t.marks[stage] = now
	if t.span != nil {
		t.span.AddEvent(string(stage), trace.WithAttributes(
			attribute.String("call_id", t.callID),
		))
	}
}

// At returns the recorded timestamp for stage and whether it was set.
func (t *Tracker) At(stage Stage) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.marks[stage]
	return ts, ok
}

// TurnLatency computes firstResponseAudio - userSpeechDetected for the most
// recently marked pair. Returns 0, false if either stage
// has not been recorded. Callers should re-Mark both stages (resetting via
// a fresh Tracker is not required; THINKING/RESPONDING mark them once per
// turn and ResetTurn clears them for the next).
func (t *Tracker) TurnLatency() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok1 := t.marks[StageUserSpeechDetected]
	end, ok2 := t.marks[StageFirstResponseAudio]
	if !ok1 || !ok2 {
		return 0, false
	}
	return end.Sub(start), true
}

// ResetTurn clears the per-turn stages (userSpeechDetected, responseStart,
// firstResponseAudio) so the next turn can record its own timings, while
// leaving the call-lifetime stages (callStart, wsOpen, sessionReady) intact.
func (t *Tracker) ResetTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.marks, StageUserSpeechDetected)
	delete(t.marks, StageResponseStart)
	delete(t.marks, StageFirstResponseAudio)
}

// stageDuration is one candidate bottleneck's (name, elapsed) pair.
type stageDuration struct {
	stage BottleneckStage
	dur   time.Duration
}

// Bottleneck computes the per-call bottleneck: argmax over
// {wsConnect, sessionConnect, firstAudio, response}.
// Stages whose inputs were never recorded are treated as zero duration and
// therefore never win unless no stage was recorded at all, in which case it
// returns BottleneckNone.
func (t *Tracker) Bottleneck() BottleneckStage {
	t.mu.Lock()
	marks := make(map[Stage]time.Time, len(t.marks))
	for k, v := range t.marks {
		marks[k] = v
	}
	t.mu.Unlock()

	candidates := []stageDuration{
		{BottleneckWSConnect, durationBetween(marks, StageCallStart, StageWSOpen)},
		{BottleneckSessionConnect, durationBetween(marks, StageWSOpen, StageSessionReady)},
		{BottleneckFirstAudio, durationBetween(marks, StageSessionReady, StageFirstOutboundAudio)},
		{BottleneckResponse, durationBetween(marks, StageUserSpeechDetected, StageFirstResponseAudio)},
	}

	best := BottleneckNone
	var bestDur time.Duration
	for _, c := range candidates {
		if c.dur > bestDur {
			best, bestDur = c.stage, c.dur
		}
	}
	return best
}

func durationBetween(marks map[Stage]time.Time, from, to Stage) time.Duration {
	start, ok1 := marks[from]
	end, ok2 := marks[to]
	if !ok1 || !ok2 || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// Finish records the final turn latency (if any) as a histogram observation
// and closes the tracking span. Call once, when the call ends.
func (t *Tracker) Finish(ctx context.Context) {
	if d, ok := t.TurnLatency(); ok && t.latency != nil {
		t.latency.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("call_id", t.callID),
			attribute.String("bottleneck", string(t.Bottleneck())),
		))
	}
	if t.span != nil {
		t.span.End()
	}
}
