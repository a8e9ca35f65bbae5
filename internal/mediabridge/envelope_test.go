package mediabridge

import (
	"encoding/json"
	"testing"
)

func TestInboundEnvelopeDemux(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want func(t *testing.T, env inboundEnvelope)
	}{
		{
			name: "start",
			raw:  `{"event":"start","start":{"callSid":"c1","streamSid":"s1","mediaFormat":{"encoding":"audio/mulaw","sampleRate":8000,"channels":1}}}`,
			want: func(t *testing.T, env inboundEnvelope) {
				if env.Start == nil || env.Start.StreamSid != "s1" {
					t.Fatalf("start payload not decoded: %+v", env.Start)
				}
				if env.Start.MediaFormat.SampleRate != 8000 {
					t.Errorf("sampleRate = %d", env.Start.MediaFormat.SampleRate)
				}
			},
		},
		{
			name: "media",
			raw:  `{"event":"media","media":{"track":"inbound","chunk":"3","timestamp":"60","payload":"AAAA"}}`,
			want: func(t *testing.T, env inboundEnvelope) {
				if env.Media == nil || env.Media.Track != "inbound" || env.Media.Payload != "AAAA" {
					t.Fatalf("media payload not decoded: %+v", env.Media)
				}
			},
		},
		{
			name: "mark",
			raw:  `{"event":"mark","mark":{"name":"agent-spoke"}}`,
			want: func(t *testing.T, env inboundEnvelope) {
				if env.Mark == nil || env.Mark.Name != "agent-spoke" {
					t.Fatalf("mark payload not decoded: %+v", env.Mark)
				}
			},
		},
		{
			name: "stop",
			raw:  `{"event":"stop","stop":{"callSid":"c1"}}`,
			want: func(t *testing.T, env inboundEnvelope) {
				if env.Stop == nil || env.Stop.CallSid != "c1" {
					t.Fatalf("stop payload not decoded: %+v", env.Stop)
				}
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var env inboundEnvelope
			if err := json.Unmarshal([]byte(c.raw), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.Event != c.name {
				t.Fatalf("event = %q, want %q", env.Event, c.name)
			}
			c.want(t, env)
		})
	}
}

func TestOutboundEnvelopeShape(t *testing.T) {
	env := outboundEnvelope{
		Event: "media",
		Media: &outboundMediaV{
			Track:          "outbound",
			Chunk:          "7",
			Timestamp:      "140",
			Payload:        "AAAA",
			SequenceNumber: "7",
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip: %v", err)
	}
	media, ok := decoded["media"].(map[string]any)
	if !ok {
		t.Fatalf("no media object in %s", data)
	}
	for _, key := range []string{"track", "chunk", "timestamp", "payload", "sequenceNumber"} {
		if _, ok := media[key]; !ok {
			t.Errorf("outbound media frame missing %q: %s", key, data)
		}
	}
	if _, ok := decoded["mark"]; ok {
		t.Errorf("empty mark must be omitted: %s", data)
	}
}
