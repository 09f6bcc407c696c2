package realtime

import (
	"encoding/json"
	"time"

	"github.com/zaltech/callops/internal/calls"
)

// EventType discriminates canonical events after adapter normalization.
type EventType string

const (
	EventCallStarted       EventType = "call.started"
	EventCallUpdated       EventType = "call.updated"
	EventTranscriptDelta   EventType = "transcript.delta"
	EventTranscriptFinal   EventType = "transcript.final"
	EventExtractionUpdated EventType = "extraction.updated"
	EventCallEnded         EventType = "call.ended"
)

// Source identifies which transport delivered an event. Live push and
// polling are equally authoritative; the merge engine resolves overlap.
type Source string

const (
	SourceLive Source = "live"
	SourcePoll Source = "poll"
)

// CallPatch carries call lifecycle fields for call.started / call.updated
// events. Nil fields are "not specified": call.updated merges shallowly
// (set fields win, absent fields retain prior values) while call.started
// replaces the snapshot outright.
type CallPatch struct {
	ProviderSID  *string           `json:"provider_sid,omitempty"`
	CallerNumber *string           `json:"caller_number,omitempty"`
	Status       *calls.CallStatus `json:"status,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	DurationSec  *int              `json:"duration_sec,omitempty"`
	LeadID       *string           `json:"lead_id,omitempty"`
	Confidence   *float64          `json:"confidence,omitempty"`
	Outcome      *string           `json:"outcome,omitempty"`
}

// Event is the single canonical shape every inbound message is normalized
// into. Exactly one of Transcript, Extraction, Call is set depending on Type;
// call.ended carries only Type, CallID, and Timestamp.
type Event struct {
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"-"`

	Transcript *calls.TranscriptItem `json:"transcript,omitempty"`
	Extraction *calls.Extraction     `json:"extraction,omitempty"`
	Call       *CallPatch            `json:"call,omitempty"`
}

// MarshalJSON emits the wire form pushed to dashboard clients, with the
// timestamp in milliseconds since epoch.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		TimestampMS int64 `json:"timestamp"`
	}{alias(e), e.Timestamp.UnixMilli()})
}
