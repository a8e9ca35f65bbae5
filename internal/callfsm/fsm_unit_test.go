package callfsm

import (
	"testing"
	"time"
)

func TestInterruptionDebounce(t *testing.T) {
	cases := []struct {
		sensitivity float64
		want        time.Duration
	}{
		{1.0, 80 * time.Millisecond},
		{0.0, 300 * time.Millisecond},
		{0.5, 175 * time.Millisecond},
		{2.0, 80 * time.Millisecond}, // clamped at the floor
	}
	for _, c := range cases {
		if got := interruptionDebounce(c.sensitivity); got != c.want {
			t.Errorf("interruptionDebounce(%v) = %v, want %v", c.sensitivity, got, c.want)
		}
	}
}
