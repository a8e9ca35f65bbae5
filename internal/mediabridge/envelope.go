package mediabridge

// Carrier media-stream envelope: JSON control frames with
// event ∈ {connected, start, media, mark, stop} and a media.payload field
// carrying base64 µ-law bytes.

type inboundEnvelope struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
	Mark  *markPayload  `json:"mark,omitempty"`
	Stop  *stopPayload  `json:"stop,omitempty"`
}

type startPayload struct {
	CallSid     string      `json:"callSid"`
	StreamSid   string      `json:"streamSid"`
	MediaFormat mediaFormat `json:"mediaFormat"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type mediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type stopPayload struct {
	CallSid string `json:"callSid"`
}

// outboundEnvelope mirrors inboundEnvelope's media shape for the
// carrier-outbound direction, adding the monotonically increasing
// sequenceNumber the carrier expects.
type outboundEnvelope struct {
	Event string           `json:"event"`
	Media *outboundMediaV  `json:"media,omitempty"`
	Mark  *markPayload     `json:"mark,omitempty"`
}

type outboundMediaV struct {
	Track          string `json:"track"`
	Chunk          string `json:"chunk"`
	Timestamp      string `json:"timestamp"`
	Payload        string `json:"payload"`
	SequenceNumber string `json:"sequenceNumber"`
}
