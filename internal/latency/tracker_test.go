package latency

import (
	"context"
	"testing"
	"time"
)

func TestMarkIsSetOnce(t *testing.T) {
	tr, _ := New(context.Background(), "call-1")
	defer tr.Finish(context.Background())

	tr.Mark(StageUserSpeechDetected)
	first, ok := tr.At(StageUserSpeechDetected)
	if !ok {
		t.Fatal("stage not recorded")
	}

	time.Sleep(time.Millisecond)
	tr.Mark(StageUserSpeechDetected)
	second, _ := tr.At(StageUserSpeechDetected)
	if !second.Equal(first) {
		t.Error("re-marking a stage must not move its timestamp")
	}
}

func TestTurnLatency(t *testing.T) {
	tr, _ := New(context.Background(), "call-1")
	defer tr.Finish(context.Background())

	if _, ok := tr.TurnLatency(); ok {
		t.Fatal("latency should be unavailable before both stages are marked")
	}

	tr.Mark(StageUserSpeechDetected)
	time.Sleep(2 * time.Millisecond)
	tr.Mark(StageFirstResponseAudio)

	d, ok := tr.TurnLatency()
	if !ok {
		t.Fatal("latency should be available")
	}
	if d <= 0 {
		t.Errorf("latency = %v, want > 0", d)
	}
}

func TestResetTurnClearsPerTurnStagesOnly(t *testing.T) {
	tr, _ := New(context.Background(), "call-1")
	defer tr.Finish(context.Background())

	tr.Mark(StageWSOpen)
	tr.Mark(StageUserSpeechDetected)
	tr.Mark(StageResponseStart)
	tr.Mark(StageFirstResponseAudio)

	tr.ResetTurn()

	for _, s := range []Stage{StageUserSpeechDetected, StageResponseStart, StageFirstResponseAudio} {
		if _, ok := tr.At(s); ok {
			t.Errorf("stage %s should be cleared by ResetTurn", s)
		}
	}
	for _, s := range []Stage{StageCallStart, StageWSOpen} {
		if _, ok := tr.At(s); !ok {
			t.Errorf("call-lifetime stage %s must survive ResetTurn", s)
		}
	}
}

func TestBottleneckPicksLongestStage(t *testing.T) {
	tr := &Tracker{callID: "call-1", marks: map[Stage]time.Time{}}

	base := time.Now()
	tr.marks[StageCallStart] = base
	tr.marks[StageWSOpen] = base.Add(50 * time.Millisecond)
	tr.marks[StageSessionReady] = base.Add(70 * time.Millisecond)
	tr.marks[StageUserSpeechDetected] = base.Add(time.Second)
	tr.marks[StageFirstResponseAudio] = base.Add(3 * time.Second)

	if got := tr.Bottleneck(); got != BottleneckResponse {
		t.Errorf("Bottleneck() = %q, want %q", got, BottleneckResponse)
	}
}

func TestBottleneckNoneWithoutMarks(t *testing.T) {
	tr := &Tracker{callID: "call-1", marks: map[Stage]time.Time{}}
	if got := tr.Bottleneck(); got != BottleneckNone {
		t.Errorf("Bottleneck() = %q, want none", got)
	}
}
