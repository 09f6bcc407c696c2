package realtime

import (
	"sort"
	"testing"
	"time"

	"github.com/zaltech/callops/internal/calls"
)

func item(text string, ms int64, speaker calls.Speaker) calls.TranscriptItem {
	ts := time.UnixMilli(ms).UTC()
	return calls.TranscriptItem{
		ID:        calls.TranscriptItemID("call-1", ts, speaker),
		CallID:    "call-1",
		Speaker:   speaker,
		Text:      text,
		Timestamp: ts,
		IsFinal:   true,
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	merged, dropped := MergeTranscripts()
	if len(merged) != 0 || dropped != 0 {
		t.Fatalf("expected empty result, got %d items, %d dropped", len(merged), dropped)
	}

	merged, dropped = MergeTranscripts(nil, []calls.TranscriptItem{}, nil)
	if len(merged) != 0 || dropped != 0 {
		t.Fatalf("expected empty result for empty sources, got %d items", len(merged))
	}
}

func TestMergeSortsByTimestamp(t *testing.T) {
	live := []calls.TranscriptItem{
		item("third", 3000, calls.SpeakerAI),
		item("first", 0, calls.SpeakerAI),
	}
	poll := []calls.TranscriptItem{
		item("second", 1500, calls.SpeakerCaller),
	}

	merged, _ := MergeTranscripts(live, poll)
	if len(merged) != 3 {
		t.Fatalf("expected 3 items, got %d", len(merged))
	}
	if !sort.SliceIsSorted(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	}) {
		t.Errorf("merged output not sorted: %v", merged)
	}
	if merged[0].Text != "first" || merged[1].Text != "second" || merged[2].Text != "third" {
		t.Errorf("unexpected order: %q %q %q", merged[0].Text, merged[1].Text, merged[2].Text)
	}
}

func TestDedupWithinWindow(t *testing.T) {
	a := []calls.TranscriptItem{item("Hello", 1000, calls.SpeakerAI)}
	b := []calls.TranscriptItem{item("Hello", 1999, calls.SpeakerAI)} // 999 ms apart

	merged, dropped := MergeTranscripts(a, b)
	if len(merged) != 1 {
		t.Fatalf("expected items 999ms apart to collapse, got %d items", len(merged))
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
}

func TestNoDedupOutsideWindow(t *testing.T) {
	a := []calls.TranscriptItem{item("Hello", 1000, calls.SpeakerAI)}
	b := []calls.TranscriptItem{item("Hello", 2001, calls.SpeakerAI)} // 1001 ms apart

	merged, dropped := MergeTranscripts(a, b)
	if len(merged) != 2 {
		t.Fatalf("expected items 1001ms apart to remain distinct, got %d items", len(merged))
	}
	if dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", dropped)
	}
}

func TestDedupDifferentTextKept(t *testing.T) {
	a := []calls.TranscriptItem{item("yes", 1000, calls.SpeakerCaller)}
	b := []calls.TranscriptItem{item("no", 1001, calls.SpeakerCaller)}

	merged, _ := MergeTranscripts(a, b)
	if len(merged) != 2 {
		t.Fatalf("different texts must never collapse, got %d items", len(merged))
	}
}

func TestMergeDoesNotMutateSources(t *testing.T) {
	src := []calls.TranscriptItem{
		item("b", 2000, calls.SpeakerAI),
		item("a", 1000, calls.SpeakerCaller),
	}
	MergeTranscripts(src)
	if src[0].Text != "b" || src[1].Text != "a" {
		t.Error("source slice was reordered by merge")
	}
}

func TestMergeThreeSourcesOverlap(t *testing.T) {
	historical := []calls.TranscriptItem{
		item("Hello", 1000, calls.SpeakerAI),
		item("Hi there", 2000, calls.SpeakerCaller),
	}
	poll := []calls.TranscriptItem{
		item("Hello", 1050, calls.SpeakerAI),
		item("Hi there", 2010, calls.SpeakerCaller),
		item("How can I help?", 3000, calls.SpeakerAI),
	}
	live := []calls.TranscriptItem{
		item("How can I help?", 2990, calls.SpeakerAI),
	}

	merged, dropped := MergeTranscripts(historical, poll, live)
	if len(merged) != 3 {
		t.Fatalf("expected 3 unique utterances, got %d: %v", len(merged), merged)
	}
	if dropped != 3 {
		t.Errorf("expected 3 collapsed duplicates, got %d", dropped)
	}
}
