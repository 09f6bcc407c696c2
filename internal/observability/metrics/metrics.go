package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics exposes counters/gauges for the call-state sync layer.
type RealtimeMetrics struct {
	eventsTotal    *prometheus.CounterVec
	malformedTotal prometheus.Counter
	unknownTotal   prometheus.Counter
	mergeDropped   prometheus.Counter
	subsActive     prometheus.Gauge
	reconnects     prometheus.Counter
	pollFailures   prometheus.Counter
	wsClients      prometheus.Gauge
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	m := &RealtimeMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Canonical events applied to stream state",
		}, []string{"type", "source"}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "malformed_events_total",
			Help:      "Inbound messages dropped for failing shape validation",
		}),
		unknownTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "unknown_events_total",
			Help:      "Inbound messages ignored for carrying an unknown type",
		}),
		mergeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "transcript_merge_dropped_total",
			Help:      "Transcript items collapsed as duplicates at merge time",
		}),
		subsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "subscriptions_active",
			Help:      "Calls currently observed over a live connection",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Live connection reconnect attempts after transport closure",
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callops",
			Subsystem: "realtime",
			Name:      "poll_failures_total",
			Help:      "Poll ticks that failed and were swallowed",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "callops",
			Subsystem: "stream",
			Name:      "ws_clients",
			Help:      "Dashboard websocket clients currently attached",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.malformedTotal, m.unknownTotal,
		m.mergeDropped, m.subsActive, m.reconnects, m.pollFailures, m.wsClients)
	return m
}

func (m *RealtimeMetrics) ObserveEvent(eventType, source string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType, source).Inc()
}

func (m *RealtimeMetrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.malformedTotal.Inc()
}

func (m *RealtimeMetrics) ObserveUnknown() {
	if m == nil {
		return
	}
	m.unknownTotal.Inc()
}

func (m *RealtimeMetrics) ObserveMergeDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mergeDropped.Add(float64(n))
}

func (m *RealtimeMetrics) SetActiveSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subsActive.Set(float64(n))
}

func (m *RealtimeMetrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *RealtimeMetrics) ObservePollFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *RealtimeMetrics) AddWSClients(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}
