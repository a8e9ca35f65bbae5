package model

import "time"

// CallStatus enumerates the lifecycle states of a Call. The zero value is
// CallInit. Status advances monotonically according to statusRank; any
// status in {NoAnswer, Busy, Voicemail, Failed, Completed} is terminal.
type CallStatus string

const (
	CallInit       CallStatus = "INIT"
	CallDialing    CallStatus = "DIALING"
	CallRinging    CallStatus = "RINGING"
	CallAnswered   CallStatus = "ANSWERED"
	CallInProgress CallStatus = "IN_PROGRESS"
	CallCompleted  CallStatus = "COMPLETED"
	CallFailed     CallStatus = "FAILED"
	CallNoAnswer   CallStatus = "NO_ANSWER"
	CallBusy       CallStatus = "BUSY"
	CallVoicemail  CallStatus = "VOICEMAIL"
)

// statusRank orders statuses so that TransitionStatus can reject an
// out-of-order (older) callback. Terminal statuses all share the highest
// rank so that none of them can supersede another: once any terminal status
// is reached, TransitionStatus becomes a no-op (see CallStore).
var statusRank = map[CallStatus]int{
	CallInit:       0,
	CallDialing:    1,
	CallRinging:    2,
	CallAnswered:   3,
	CallInProgress: 4,
	CallCompleted:  5,
	CallFailed:     5,
	CallNoAnswer:   5,
	CallBusy:       5,
	CallVoicemail:  5,
}

// IsTerminal reports whether s is one of the terminal statuses: no further
// transitions are accepted once a call reaches any of these.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallCompleted, CallFailed, CallNoAnswer, CallBusy, CallVoicemail:
		return true
	}
	return false
}

// Precedes reports whether s is strictly earlier than other in the defined
// partial order. Two distinct terminal statuses are incomparable — neither
// precedes the other — which is why TransitionStatus treats "already
// terminal" as a no-op rather than attempting to rank terminal statuses
// against each other.
func (s CallStatus) Precedes(other CallStatus) bool {
	return statusRank[s] < statusRank[other]
}

// Direction is the call direction relative to this system.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Outcome records why a call ended, beyond the bare CallStatus. It is set at
// most once, when the call transitions to a terminal status.
type Outcome string

const (
	OutcomeNone           Outcome = ""
	OutcomeLLMUnavailable Outcome = "llm_unavailable"
	OutcomeManualHangup   Outcome = "manual_hangup"
	OutcomeCarrierDrop    Outcome = "carrier_drop"
	OutcomeMaxDuration    Outcome = "max_duration_exceeded"
	OutcomeVoicemail      Outcome = "voicemail"
)

// CallMetrics aggregates counters accumulated over the lifetime of a Call.
// Call exclusively owns this value; it is written by the call state machine
// as the call progresses and persisted on each transition.
type CallMetrics struct {
	Interruptions    int
	FillersPlayed    int
	AverageSentiment float64
	BottleneckStage  string
}

// Call is the central entity: one record per phone call, embedding its full
// transcript. Status advances monotonically; Turns are appended in
// turnNumber order and never rewritten.
type Call struct {
	ID             string
	AgentID        string
	ProviderID     string
	FromE164       string
	ToE164         string
	Direction      Direction
	Status         CallStatus
	StartedAt      time.Time
	AnsweredAt     *time.Time
	EndedAt        *time.Time
	DurationSec    int
	ProviderCallID string
	RecordingURL   string
	Transcript     []Turn
	Metrics        CallMetrics
	Outcome        Outcome

	// Language is sticky: once set by the first turn's classification, it
	// never changes for the remainder of the call.
	Language string
	// Profile is sticky once assigned with a confident score.
	Profile string
}

// NextTurnNumber returns the turnNumber the next appended Turn must carry.
func (c *Call) NextTurnNumber() int {
	return len(c.Transcript) + 1
}

// Turn is one exchange in a Call's transcript. TurnNumber is assigned once,
// monotonically increasing from 1, and never rewritten.
type Turn struct {
	TurnNumber       int
	UserText         string
	AgentText        string
	Stage            string
	Profile          string
	Objections       []string
	AppliedPrinciple string
	Language         string
	Sentiment        float64
	FillerClipID     string
	Timestamp        time.Time
}
