package mediabridge

import (
	"encoding/binary"
	"testing"
)

func TestBytesToInt16RoundTrip(t *testing.T) {
	want := []int16{0, 1, -1, 32767, -32768, 12345}
	buf := make([]byte, len(want)*2)
	for i, s := range want {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	got := bytesToInt16(buf)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEnqueueOutboundDropsOldestWhenFull(t *testing.T) {
	b := &Bridge{outbound: make(chan []byte, 2)}

	b.enqueueOutbound([]byte{1})
	b.enqueueOutbound([]byte{2})
	b.enqueueOutbound([]byte{3}) // queue full: frame {1} should be dropped

	first := <-b.outbound
	second := <-b.outbound
	if first[0] != 2 || second[0] != 3 {
		t.Fatalf("got frames %v, %v; want oldest frame (1) dropped", first, second)
	}
}

func TestEnqueueOutboundNoDropWhenNotFull(t *testing.T) {
	b := &Bridge{outbound: make(chan []byte, 4)}
	b.enqueueOutbound([]byte{9})

	got := <-b.outbound
	if got[0] != 9 {
		t.Fatalf("got %v, want [9]", got)
	}
}
