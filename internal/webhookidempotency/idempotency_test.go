package webhookidempotency

import "testing"

func TestSeenBefore_FirstTimeFalseThenTrue(t *testing.T) {
	tr := New()
	key := StatusKey("call-1", "ANSWERED")

	if tr.SeenBefore(key) {
		t.Fatal("first observation reported as seen before")
	}
	if !tr.SeenBefore(key) {
		t.Fatal("second observation not reported as seen before")
	}
}

func TestSeenBefore_DistinctKeysIndependent(t *testing.T) {
	tr := New()
	a := StatusKey("call-1", "ANSWERED")
	b := StatusKey("call-1", "IN_PROGRESS")

	if tr.SeenBefore(a) {
		t.Fatal("key a reported seen before on first observation")
	}
	if tr.SeenBefore(b) {
		t.Fatal("key b reported seen before on first observation")
	}
	if !tr.SeenBefore(a) {
		t.Fatal("key a not reported as seen on second observation")
	}
}

func TestRecordingKey_DistinctFromStatusKey(t *testing.T) {
	tr := New()
	s := StatusKey("call-1", "COMPLETED")
	r := RecordingKey("call-1", "COMPLETED")

	if s == r {
		t.Fatal("status and recording keys collided")
	}
	tr.SeenBefore(s)
	if tr.SeenBefore(r) {
		t.Fatal("recording key should not be seen before merely because the status key was")
	}
}

func TestEviction_BoundsMemory(t *testing.T) {
	tr := NewWithCapacity(2)

	tr.SeenBefore("a")
	tr.SeenBefore("b")
	tr.SeenBefore("c") // evicts "a"

	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
	if tr.SeenBefore("a") {
		t.Error("evicted key \"a\" should be treated as unseen again")
	}
}
