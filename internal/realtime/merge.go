package realtime

import (
	"sort"
	"time"

	"github.com/zaltech/callops/internal/calls"
)

// DedupWindow is the tolerance inside which two identical texts are treated
// as the same utterance. The same utterance can arrive with slightly
// different timestamps from different sources (client receipt time vs server
// processing time), so exact-id matching is not enough.
const DedupWindow = time.Second

// MergeTranscripts combines transcript sequences from any number of sources
// (historical fetch, polling, live push) into one ordered, duplicate-free
// sequence. Inputs are never mutated.
//
// Two items collapse when their text is identical and their timestamps are
// less than DedupWindow apart. A caller genuinely repeating the same words
// inside the window collapses too; that is an accepted lossy heuristic.
// dropped reports how many items were collapsed.
func MergeTranscripts(sources ...[]calls.TranscriptItem) (merged []calls.TranscriptItem, dropped int) {
	var total int
	for _, src := range sources {
		total += len(src)
	}
	if total == 0 {
		return []calls.TranscriptItem{}, 0
	}

	all := make([]calls.TranscriptItem, 0, total)
	for _, src := range sources {
		all = append(all, src...)
	}

	// Stable sort keeps arrival order deterministic for equal timestamps.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	merged = make([]calls.TranscriptItem, 0, total)
	lastKept := make(map[string]time.Time, total)
	for _, item := range all {
		if prev, ok := lastKept[item.Text]; ok && item.Timestamp.Sub(prev) < DedupWindow {
			dropped++
			continue
		}
		lastKept[item.Text] = item.Timestamp
		merged = append(merged, item)
	}
	return merged, dropped
}
