package calls

import (
	"fmt"
	"strings"
	"time"
)

// CallStatus is the lifecycle state of a phone interaction.
type CallStatus string

const (
	StatusRinging     CallStatus = "RINGING"
	StatusInProgress  CallStatus = "IN_PROGRESS"
	StatusCompleted   CallStatus = "COMPLETED"
	StatusDropped     CallStatus = "DROPPED"
	StatusTransferred CallStatus = "TRANSFERRED"
)

// Terminal reports whether the status ends active tracking of a call.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDropped, StatusTransferred:
		return true
	}
	return false
}

// ParseStatus maps wire status strings (either case style) to a CallStatus.
func ParseStatus(raw string) (CallStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RINGING":
		return StatusRinging, true
	case "IN_PROGRESS", "ACTIVE":
		return StatusInProgress, true
	case "COMPLETED", "ENDED":
		return StatusCompleted, true
	case "DROPPED":
		return StatusDropped, true
	case "TRANSFERRED":
		return StatusTransferred, true
	}
	return "", false
}

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerAI     Speaker = "AI"
	SpeakerCaller Speaker = "CALLER"
)

// Call is one phone interaction handled by the voice agent.
type Call struct {
	ID           string     `json:"id"`
	ProviderSID  string     `json:"provider_sid"`
	CallerNumber string     `json:"caller_number"`
	Status       CallStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationSec  int        `json:"duration_sec"`
	LeadID       string     `json:"lead_id,omitempty"`
	Confidence   float64    `json:"confidence"`
	Outcome      string     `json:"outcome,omitempty"`
}

// TranscriptItem is a single utterance within a call.
// Items are append-only; once final they are never mutated.
type TranscriptItem struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsFinal   bool      `json:"is_final"`
}

// TranscriptItemID derives a stable utterance id from call, timestamp, and
// speaker. The same utterance reported by different sources (live push vs
// poll) must map to the same id, so the id never encodes the source.
func TranscriptItemID(callID string, ts time.Time, speaker Speaker) string {
	return fmt.Sprintf("t-%s-%d-%s", callID, ts.UnixMilli(), speaker)
}

// Extraction is the structured data the agent has derived from the
// conversation so far. Replaced wholesale on every update; never merged
// field by field.
type Extraction struct {
	CallerName string `json:"caller_name,omitempty"`
	Service    string `json:"service,omitempty"`
	DateISO    string `json:"date_iso,omitempty"`
	TimeISO    string `json:"time_iso,omitempty"`
	Confirmed  bool   `json:"confirmed"`
}

// CallDetail is a call with its merged transcript and latest extraction.
type CallDetail struct {
	Call
	Transcript []TranscriptItem `json:"transcript"`
	Extraction *Extraction      `json:"extraction,omitempty"`
}
