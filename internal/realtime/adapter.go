package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/internal/observability/metrics"
	"github.com/zaltech/callops/pkg/logging"
)

// ErrMalformedEvent marks an inbound message that cannot be parsed into any
// known shape. Callers log and drop; it never propagates to dashboard clients.
var ErrMalformedEvent = errors.New("realtime: malformed event")

// Adapter normalizes heterogeneous inbound payloads (live push messages,
// poll snapshots, the initial historical fetch) into canonical Events.
type Adapter struct {
	logger  *logging.Logger
	metrics *metrics.RealtimeMetrics
	now     func() time.Time
}

func NewAdapter(logger *logging.Logger, m *metrics.RealtimeMetrics) *Adapter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Adapter{
		logger:  logger.Component("realtime.adapter"),
		metrics: m,
		now:     time.Now,
	}
}

type rawEnvelope struct {
	Type        string          `json:"type"`
	CallIDCamel string          `json:"callId"`
	CallIDSnake string          `json:"call_id"`
	Timestamp   json.Number     `json:"timestamp"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Data        json.RawMessage `json:"data"`
}

func (r rawEnvelope) callID(fallback string) string {
	if r.CallIDCamel != "" {
		return r.CallIDCamel
	}
	if r.CallIDSnake != "" {
		return r.CallIDSnake
	}
	return fallback
}

type rawTranscript struct {
	Speaker   string      `json:"speaker"`
	Text      string      `json:"text"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Timestamp json.Number `json:"timestamp"`
	IsFinal   *bool       `json:"is_final"`
}

type rawExtraction struct {
	CallerName      string `json:"caller_name"`
	DetectedService string `json:"detected_service"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	IsConfirmed     bool   `json:"is_confirmed"`
}

type rawCall struct {
	ID           string       `json:"id"`
	ProviderSID  string       `json:"provider_sid"`
	CallerNumber string       `json:"caller_number"`
	Status       string       `json:"status"`
	StartedAt    *json.Number `json:"started_at"`
	EndedAt      *json.Number `json:"ended_at"`
	DurationSec  *int         `json:"duration_sec"`
	LeadID       *string      `json:"lead_id"`
	Confidence   *float64     `json:"confidence"`
	Outcome      *string      `json:"outcome"`
}

// rawSnapshot is the full-state fetch returned by the poll endpoint and the
// initial historical load. Transcript entries become synthetic
// transcript.final events so both transports feed the same merge engine.
type rawSnapshot struct {
	rawCall
	Transcript []rawTranscript `json:"transcript"`
	Extraction *rawExtraction  `json:"extraction"`
}

// normalizeMillis accepts seconds or milliseconds since epoch and returns a
// UTC time in milliseconds precision. Values below 1e12 are treated as
// seconds (1e12 ms is far in the future; 1e12 s is far past any sane epoch).
func normalizeMillis(n json.Number) (time.Time, error) {
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, err
	}
	if f <= 0 {
		return time.Time{}, fmt.Errorf("non-positive timestamp %v", n)
	}
	if f < 1e12 {
		f *= 1000
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

func mapSpeaker(speaker, role string) (calls.Speaker, bool) {
	switch speaker {
	case string(calls.SpeakerAI):
		return calls.SpeakerAI, true
	case string(calls.SpeakerCaller):
		return calls.SpeakerCaller, true
	}
	switch role {
	case "assistant":
		return calls.SpeakerAI, true
	case "user":
		return calls.SpeakerCaller, true
	}
	return "", false
}

func mapExtraction(raw *rawExtraction) *calls.Extraction {
	if raw == nil {
		return nil
	}
	return &calls.Extraction{
		CallerName: raw.CallerName,
		Service:    raw.DetectedService,
		DateISO:    raw.AppointmentDate,
		TimeISO:    raw.AppointmentTime,
		Confirmed:  raw.IsConfirmed,
	}
}

func (a *Adapter) mapCallPatch(raw rawCall) (*CallPatch, error) {
	patch := &CallPatch{
		DurationSec: raw.DurationSec,
		LeadID:      raw.LeadID,
		Confidence:  raw.Confidence,
		Outcome:     raw.Outcome,
	}
	if raw.ProviderSID != "" {
		patch.ProviderSID = &raw.ProviderSID
	}
	if raw.CallerNumber != "" {
		patch.CallerNumber = &raw.CallerNumber
	}
	if raw.Status != "" {
		status, ok := calls.ParseStatus(raw.Status)
		if !ok {
			return nil, fmt.Errorf("unknown call status %q", raw.Status)
		}
		patch.Status = &status
	}
	if raw.StartedAt != nil {
		ts, err := normalizeMillis(*raw.StartedAt)
		if err != nil {
			return nil, err
		}
		patch.StartedAt = &ts
	}
	if raw.EndedAt != nil {
		ts, err := normalizeMillis(*raw.EndedAt)
		if err != nil {
			return nil, err
		}
		patch.EndedAt = &ts
	}
	return patch, nil
}

func (a *Adapter) transcriptItem(callID string, raw rawTranscript, fallbackTS time.Time) (*calls.TranscriptItem, error) {
	text := raw.Text
	if text == "" {
		text = raw.Content
	}
	if text == "" {
		return nil, fmt.Errorf("transcript entry without text")
	}
	speaker, ok := mapSpeaker(raw.Speaker, raw.Role)
	if !ok {
		return nil, fmt.Errorf("transcript entry without speaker or role")
	}
	ts := fallbackTS
	if raw.Timestamp != "" {
		parsed, err := normalizeMillis(raw.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}
	if ts.IsZero() {
		return nil, fmt.Errorf("transcript entry without timestamp")
	}
	isFinal := true
	if raw.IsFinal != nil {
		isFinal = *raw.IsFinal
	}
	return &calls.TranscriptItem{
		ID:        calls.TranscriptItemID(callID, ts, speaker),
		CallID:    callID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: ts,
		IsFinal:   isFinal,
	}, nil
}

// Normalize converts one live push message into canonical events. Unknown
// event types return an empty slice, not an error: the upstream platform is
// free to add types before we learn about them.
func (a *Adapter) Normalize(callID string, raw []byte) ([]Event, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.metrics.ObserveMalformed()
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	id := env.callID(callID)
	if id == "" {
		a.metrics.ObserveMalformed()
		return nil, fmt.Errorf("%w: missing call id", ErrMalformedEvent)
	}

	ts := a.now().UTC()
	if env.Timestamp != "" {
		parsed, err := normalizeMillis(env.Timestamp)
		if err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ts = parsed
	}

	// Bare role-based transcript shape: no discriminator, role/content at
	// the top level. Mapped to a final transcript item.
	if env.Type == "" || env.Type == "transcript" {
		if env.Role == "" && env.Content == "" {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: no type and no role/content", ErrMalformedEvent)
		}
		item, err := a.transcriptItem(id, rawTranscript{Role: env.Role, Content: env.Content}, ts)
		if err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		a.metrics.ObserveEvent(string(EventTranscriptFinal), string(SourceLive))
		return []Event{{Type: EventTranscriptFinal, CallID: id, Timestamp: item.Timestamp, Transcript: item}}, nil
	}

	switch EventType(env.Type) {
	case EventTranscriptDelta, EventTranscriptFinal:
		var data rawTranscript
		if err := json.Unmarshal(env.Data, &data); err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		item, err := a.transcriptItem(id, data, ts)
		if err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		item.IsFinal = EventType(env.Type) == EventTranscriptFinal
		a.metrics.ObserveEvent(env.Type, string(SourceLive))
		return []Event{{Type: EventType(env.Type), CallID: id, Timestamp: item.Timestamp, Transcript: item}}, nil

	case EventExtractionUpdated:
		var data rawExtraction
		if err := json.Unmarshal(env.Data, &data); err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		a.metrics.ObserveEvent(env.Type, string(SourceLive))
		return []Event{{Type: EventExtractionUpdated, CallID: id, Timestamp: ts, Extraction: mapExtraction(&data)}}, nil

	case EventCallStarted, EventCallUpdated:
		var data rawCall
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				a.metrics.ObserveMalformed()
				return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			}
		}
		patch, err := a.mapCallPatch(data)
		if err != nil {
			a.metrics.ObserveMalformed()
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		a.metrics.ObserveEvent(env.Type, string(SourceLive))
		return []Event{{Type: EventType(env.Type), CallID: id, Timestamp: ts, Call: patch}}, nil

	case EventCallEnded:
		a.metrics.ObserveEvent(env.Type, string(SourceLive))
		return []Event{{Type: EventCallEnded, CallID: id, Timestamp: ts}}, nil

	default:
		// Forward-compatibility: ignore, never fail.
		a.metrics.ObserveUnknown()
		a.logger.Debug("ignoring unknown event type", "type", env.Type, "call_id", id)
		return nil, nil
	}
}

// NormalizeSnapshot converts a full call-state fetch (poll tick or initial
// load) into canonical events: one call.updated, one synthetic
// transcript.final per entry, one extraction.updated if present, and a
// trailing call.ended when the snapshot reports a terminal status.
func (a *Adapter) NormalizeSnapshot(callID string, raw []byte) ([]Event, error) {
	var snap rawSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		a.metrics.ObserveMalformed()
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	id := callID
	if snap.ID != "" {
		id = snap.ID
	}
	if id == "" {
		a.metrics.ObserveMalformed()
		return nil, fmt.Errorf("%w: snapshot without call id", ErrMalformedEvent)
	}

	now := a.now().UTC()
	events := make([]Event, 0, len(snap.Transcript)+3)

	patch, err := a.mapCallPatch(snap.rawCall)
	if err != nil {
		a.metrics.ObserveMalformed()
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	a.metrics.ObserveEvent(string(EventCallUpdated), string(SourcePoll))
	events = append(events, Event{Type: EventCallUpdated, CallID: id, Timestamp: now, Call: patch})

	for _, entry := range snap.Transcript {
		item, err := a.transcriptItem(id, entry, time.Time{})
		if err != nil {
			// A single bad entry should not discard the rest of the
			// snapshot; skip it and keep going.
			a.metrics.ObserveMalformed()
			a.logger.Warn("skipping malformed snapshot transcript entry", "call_id", id, "error", err)
			continue
		}
		a.metrics.ObserveEvent(string(EventTranscriptFinal), string(SourcePoll))
		events = append(events, Event{Type: EventTranscriptFinal, CallID: id, Timestamp: item.Timestamp, Transcript: item})
	}

	if snap.Extraction != nil {
		a.metrics.ObserveEvent(string(EventExtractionUpdated), string(SourcePoll))
		events = append(events, Event{Type: EventExtractionUpdated, CallID: id, Timestamp: now, Extraction: mapExtraction(snap.Extraction)})
	}

	if patch.Status != nil && patch.Status.Terminal() {
		a.metrics.ObserveEvent(string(EventCallEnded), string(SourcePoll))
		events = append(events, Event{Type: EventCallEnded, CallID: id, Timestamp: now})
	}

	return events, nil
}
