package realtime

import (
	"errors"
	"testing"
	"time"

	"github.com/zaltech/callops/internal/calls"
)

func newTestAdapter() *Adapter {
	a := NewAdapter(nil, nil)
	a.now = func() time.Time { return time.UnixMilli(5_000_000).UTC() }
	return a
}

func TestNormalizeTypedTranscript(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"type":"transcript.final","callId":"call-42","timestamp":1000,
		"data":{"speaker":"AI","text":"Hello"}}`)

	events, err := a.Normalize("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventTranscriptFinal || ev.CallID != "call-42" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Transcript == nil || ev.Transcript.Text != "Hello" || ev.Transcript.Speaker != calls.SpeakerAI {
		t.Errorf("unexpected transcript item: %+v", ev.Transcript)
	}
	// 1000 is below the ms threshold, so it is seconds.
	if got := ev.Transcript.Timestamp.UnixMilli(); got != 1_000_000 {
		t.Errorf("timestamp not normalized to ms: %d", got)
	}
	if !ev.Transcript.IsFinal {
		t.Error("transcript.final must yield a final item")
	}
}

func TestNormalizeDeltaNotFinal(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"type":"transcript.delta","call_id":"call-1","timestamp":1700000000000,
		"data":{"role":"user","content":"partial th"}}`)

	events, err := a.Normalize("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := events[0]
	if ev.Type != EventTranscriptDelta {
		t.Fatalf("expected delta, got %s", ev.Type)
	}
	if ev.Transcript.IsFinal {
		t.Error("delta item must not be final")
	}
	if ev.Transcript.Speaker != calls.SpeakerCaller {
		t.Errorf("role user must map to CALLER, got %s", ev.Transcript.Speaker)
	}
	if got := ev.Transcript.Timestamp.UnixMilli(); got != 1_700_000_000_000 {
		t.Errorf("ms timestamp must pass through unchanged: %d", got)
	}
}

func TestNormalizeRoleBasedShape(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"role":"assistant","content":"Thanks for calling","timestamp":1700000000}`)

	events, err := a.Normalize("call-7", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := events[0]
	if ev.Type != EventTranscriptFinal || ev.CallID != "call-7" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Transcript.Speaker != calls.SpeakerAI {
		t.Errorf("role assistant must map to AI, got %s", ev.Transcript.Speaker)
	}
}

func TestNormalizeExtractionSnakeCase(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"type":"extraction.updated","callId":"call-1","timestamp":1700000000000,
		"data":{"caller_name":"Jane","detected_service":"Voice AI","appointment_date":"2026-09-04",
		"appointment_time":"14:00","is_confirmed":true}}`)

	events, err := a.Normalize("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ext := events[0].Extraction
	if ext == nil {
		t.Fatal("expected extraction payload")
	}
	if ext.CallerName != "Jane" || ext.Service != "Voice AI" || ext.DateISO != "2026-09-04" ||
		ext.TimeISO != "14:00" || !ext.Confirmed {
		t.Errorf("snake_case mapping wrong: %+v", ext)
	}
}

func TestNormalizeUnknownTypeIgnored(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"type":"future.unsupported.event","callId":"call-1","timestamp":1000,"data":{}}`)

	events, err := a.Normalize("", raw)
	if err != nil {
		t.Fatalf("unknown types must not error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unknown types must be ignored, got %d events", len(events))
	}
}

func TestNormalizeMalformed(t *testing.T) {
	a := newTestAdapter()
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `{not json`},
		{"no call id", `{"type":"call.ended","timestamp":1000}`},
		{"transcript without text", `{"type":"transcript.final","callId":"c","timestamp":1,"data":{"speaker":"AI"}}`},
		{"transcript without speaker", `{"type":"transcript.final","callId":"c","timestamp":1,"data":{"text":"hi"}}`},
		{"bad status", `{"type":"call.updated","callId":"c","timestamp":1,"data":{"status":"EXPLODED"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Normalize("", []byte(tt.raw))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestNormalizeCallStarted(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"type":"call.started","callId":"call-9","timestamp":1700000000,
		"data":{"provider_sid":"CA123","caller_number":"+15550001111","status":"ringing",
		"started_at":1700000000,"confidence":0.4}}`)

	events, err := a.Normalize("", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	patch := events[0].Call
	if patch == nil {
		t.Fatal("expected call patch")
	}
	if patch.Status == nil || *patch.Status != calls.StatusRinging {
		t.Errorf("expected RINGING status, got %+v", patch.Status)
	}
	if patch.CallerNumber == nil || *patch.CallerNumber != "+15550001111" {
		t.Errorf("unexpected caller number: %+v", patch.CallerNumber)
	}
	if patch.Confidence == nil || *patch.Confidence != 0.4 {
		t.Errorf("unexpected confidence: %+v", patch.Confidence)
	}
}

func TestNormalizeSnapshot(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{
		"id":"call-42","provider_sid":"CA42","caller_number":"+15551234567",
		"status":"in_progress","started_at":1700000000,"duration_sec":95,"confidence":0.9,
		"transcript":[
			{"role":"assistant","content":"Hello","timestamp":1700000001},
			{"role":"user","content":"Hi there","timestamp":1700000002}
		],
		"extraction":{"caller_name":"John","detected_service":"Demo","is_confirmed":false}
	}`)

	events, err := a.NormalizeSnapshot("call-42", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// call.updated + 2 transcript.final + extraction.updated
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventCallUpdated {
		t.Errorf("first event must be call.updated, got %s", events[0].Type)
	}
	if events[1].Type != EventTranscriptFinal || !events[1].Transcript.IsFinal {
		t.Errorf("snapshot transcript entries must become transcript.final")
	}
	if events[1].Transcript.Speaker != calls.SpeakerAI || events[2].Transcript.Speaker != calls.SpeakerCaller {
		t.Error("snapshot roles mapped incorrectly")
	}
	if events[3].Type != EventExtractionUpdated || events[3].Extraction.CallerName != "John" {
		t.Errorf("unexpected extraction event: %+v", events[3])
	}
}

func TestNormalizeSnapshotTerminalStatusEmitsEnded(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"id":"call-5","status":"completed","transcript":[],"duration_sec":60}`)

	events, err := a.NormalizeSnapshot("call-5", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != EventCallEnded {
		t.Fatalf("terminal snapshot must end with call.ended, got %s", last.Type)
	}
}

func TestNormalizeSnapshotSkipsBadEntries(t *testing.T) {
	a := newTestAdapter()
	raw := []byte(`{"id":"call-5","status":"in_progress","transcript":[
		{"content":"no speaker here","timestamp":1700000001},
		{"role":"user","content":"good entry","timestamp":1700000002}
	]}`)

	events, err := a.NormalizeSnapshot("call-5", raw)
	if err != nil {
		t.Fatalf("one bad entry must not fail the snapshot: %v", err)
	}
	var transcripts int
	for _, ev := range events {
		if ev.Type == EventTranscriptFinal {
			transcripts++
		}
	}
	if transcripts != 1 {
		t.Fatalf("expected 1 usable transcript entry, got %d", transcripts)
	}
}
