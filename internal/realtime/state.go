package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/internal/observability/metrics"
	"github.com/zaltech/callops/pkg/logging"
)

// EventSink receives every canonical event after it has been applied.
// The stream hub uses this to fan events out to dashboard clients.
type EventSink interface {
	Publish(ev Event)
}

// callState is the accumulated state for one observed call. Transcript
// buffers are kept per source and may contain duplicates; the merge engine
// resolves them at read time.
type callState struct {
	call         calls.Call
	live         bool
	ended        bool
	buffers      map[Source][]calls.TranscriptItem
	extraction   *calls.Extraction
	extractionAt time.Time
}

// StreamState owns the mutable state for every call under observation.
// All mutation goes through ApplyEvent; reads are safe from any goroutine.
type StreamState struct {
	mu      sync.RWMutex
	byCall  map[string]*callState
	sink    EventSink
	onEnded func(callID string, detail calls.CallDetail)

	logger  *logging.Logger
	metrics *metrics.RealtimeMetrics
	now     func() time.Time
}

func NewStreamState(logger *logging.Logger, m *metrics.RealtimeMetrics) *StreamState {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamState{
		byCall:  make(map[string]*callState),
		logger:  logger.Component("realtime.state"),
		metrics: m,
		now:     time.Now,
	}
}

// SetSink attaches a fan-out sink. Must be called before events flow.
func (s *StreamState) SetSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// SetOnCallEnded registers the teardown hook invoked exactly once per call
// when call.ended is first applied. The subscription manager and archiver
// hang off this.
func (s *StreamState) SetOnCallEnded(fn func(callID string, detail calls.CallDetail)) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *StreamState) stateFor(callID string) *callState {
	st, ok := s.byCall[callID]
	if !ok {
		st = &callState{
			call:    calls.Call{ID: callID, Status: calls.StatusRinging},
			buffers: make(map[Source][]calls.TranscriptItem),
		}
		s.byCall[callID] = st
	}
	return st
}

func applyPatch(call *calls.Call, patch *CallPatch) {
	if patch == nil {
		return
	}
	if patch.ProviderSID != nil {
		call.ProviderSID = *patch.ProviderSID
	}
	if patch.CallerNumber != nil {
		call.CallerNumber = *patch.CallerNumber
	}
	if patch.Status != nil {
		call.Status = *patch.Status
	}
	if patch.StartedAt != nil {
		call.StartedAt = *patch.StartedAt
	}
	if patch.EndedAt != nil {
		call.EndedAt = patch.EndedAt
	}
	if patch.DurationSec != nil {
		call.DurationSec = *patch.DurationSec
	}
	if patch.LeadID != nil {
		call.LeadID = *patch.LeadID
	}
	if patch.Confidence != nil {
		call.Confidence = *patch.Confidence
	}
	if patch.Outcome != nil {
		call.Outcome = *patch.Outcome
	}
}

// ApplyEvent dispatches one canonical event into the store. It is the only
// mutation path. call.ended is idempotent; extraction updates older than the
// current snapshot are ignored.
func (s *StreamState) ApplyEvent(src Source, ev Event) {
	if ev.CallID == "" {
		return
	}

	var (
		sink     EventSink
		onEnded  func(string, calls.CallDetail)
		detail   calls.CallDetail
		endedNow bool
	)

	s.mu.Lock()
	sink = s.sink

	switch ev.Type {
	case EventCallStarted:
		st := s.stateFor(ev.CallID)
		fresh := calls.Call{ID: ev.CallID, Status: calls.StatusRinging, StartedAt: ev.Timestamp}
		applyPatch(&fresh, ev.Call)
		st.call = fresh
		st.live = true
		st.ended = false

	case EventCallUpdated:
		st := s.stateFor(ev.CallID)
		applyPatch(&st.call, ev.Call)
		if !st.ended && !st.live {
			st.live = !st.call.Status.Terminal()
		}

	case EventTranscriptDelta, EventTranscriptFinal:
		if ev.Transcript == nil {
			s.mu.Unlock()
			return
		}
		st := s.stateFor(ev.CallID)
		st.buffers[src] = append(st.buffers[src], *ev.Transcript)

	case EventExtractionUpdated:
		if ev.Extraction == nil {
			s.mu.Unlock()
			return
		}
		st := s.stateFor(ev.CallID)
		if st.extraction != nil && ev.Timestamp.Before(st.extractionAt) {
			s.mu.Unlock()
			return
		}
		snapshot := *ev.Extraction
		st.extraction = &snapshot
		st.extractionAt = ev.Timestamp

	case EventCallEnded:
		st := s.stateFor(ev.CallID)
		if st.ended {
			s.mu.Unlock()
			return
		}
		st.ended = true
		st.live = false
		if !st.call.Status.Terminal() {
			st.call.Status = calls.StatusCompleted
		}
		if st.call.EndedAt == nil {
			ts := ev.Timestamp
			st.call.EndedAt = &ts
		}
		endedNow = true
		onEnded = s.onEnded
		detail = s.detailLocked(st)

	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if sink != nil {
		sink.Publish(ev)
	}
	if endedNow && onEnded != nil {
		onEnded(ev.CallID, detail)
	}
}

func (s *StreamState) detailLocked(st *callState) calls.CallDetail {
	sources := make([][]calls.TranscriptItem, 0, len(st.buffers))
	for _, buf := range st.buffers {
		sources = append(sources, buf)
	}
	merged, dropped := MergeTranscripts(sources...)
	s.metrics.ObserveMergeDropped(dropped)

	detail := calls.CallDetail{Call: st.call, Transcript: merged}
	if st.extraction != nil {
		snapshot := *st.extraction
		detail.Extraction = &snapshot
	}
	return detail
}

// Transcript returns the merged, ordered, duplicate-free transcript for a
// call. Safe to call on every render; unknown calls yield an empty slice.
func (s *StreamState) Transcript(callID string) []calls.TranscriptItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCall[callID]
	if !ok {
		return []calls.TranscriptItem{}
	}
	sources := make([][]calls.TranscriptItem, 0, len(st.buffers))
	for _, buf := range st.buffers {
		sources = append(sources, buf)
	}
	merged, dropped := MergeTranscripts(sources...)
	s.metrics.ObserveMergeDropped(dropped)
	return merged
}

// Extraction returns the latest extraction snapshot for a call.
func (s *StreamState) Extraction(callID string) (calls.Extraction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCall[callID]
	if !ok || st.extraction == nil {
		return calls.Extraction{}, false
	}
	return *st.extraction, true
}

// CallSnapshot returns the current lifecycle snapshot for a call. For live
// calls the duration is recomputed from the start time so dashboards see it
// tick without waiting for the next upstream update.
func (s *StreamState) CallSnapshot(callID string) (calls.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCall[callID]
	if !ok {
		return calls.Call{}, false
	}
	return s.liveDuration(st), true
}

func (s *StreamState) liveDuration(st *callState) calls.Call {
	call := st.call
	if st.live && !call.StartedAt.IsZero() {
		if elapsed := int(s.now().Sub(call.StartedAt) / time.Second); elapsed > call.DurationSec {
			call.DurationSec = elapsed
		}
	}
	return call
}

// Detail returns the full call detail (snapshot, merged transcript, latest
// extraction) in one consistent read.
func (s *StreamState) Detail(callID string) (calls.CallDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCall[callID]
	if !ok {
		return calls.CallDetail{}, false
	}
	detail := s.detailLocked(st)
	detail.Call = s.liveDuration(st)
	return detail, true
}

// IsLive reports whether the call is still actively tracked.
func (s *StreamState) IsLive(callID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byCall[callID]
	return ok && st.live
}

// ActiveCalls lists every call still live, oldest first.
func (s *StreamState) ActiveCalls() []calls.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]calls.Call, 0, len(s.byCall))
	for _, st := range s.byCall {
		if st.live {
			out = append(out, s.liveDuration(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Forget drops a call from the store. Ended calls are retained for the
// session by default; this exists for the archiver to trim after persisting.
func (s *StreamState) Forget(callID string) {
	s.mu.Lock()
	delete(s.byCall, callID)
	s.mu.Unlock()
}
