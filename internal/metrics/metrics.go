package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outbound calls, cache effectiveness and served requests. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry     *prometheus.Registry
	apiRequests  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	coalesced    prometheus.Counter
	storageFails *prometheus.CounterVec
	channelMsgs  *prometheus.CounterVec
	httpRequests *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokedex",
			Name:      "api_requests_total",
			Help:      "Outbound API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokedex",
			Name:      "cache_lookups_total",
			Help:      "Query cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pokedex",
			Name:      "coalesced_requests_total",
			Help:      "Callers that shared an in-flight request instead of issuing their own.",
		}),
		storageFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokedex",
			Name:      "storage_write_failures_total",
			Help:      "Persistence writes that failed and were dropped.",
		}, []string{"key"}),
		channelMsgs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokedex",
			Name:      "battle_channel_messages_total",
			Help:      "Battle channel messages by event and direction.",
		}, []string{"event", "direction"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pokedex",
			Name:      "http_request_duration_seconds",
			Help:      "Served HTTP requests by path and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "code"}),
	}
	reg.MustRegister(m.apiRequests, m.cacheLookups, m.coalesced, m.storageFails, m.channelMsgs, m.httpRequests)
	return m
}

func (m *Metrics) APIRequest(endpoint string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.apiRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) StorageFailure(key string) {
	if m == nil {
		return
	}
	m.storageFails.WithLabelValues(key).Inc()
}

// ChannelMessage counts one battle channel message; direction is "in" or "out".
func (m *Metrics) ChannelMessage(event, direction string) {
	if m == nil {
		return
	}
	m.channelMsgs.WithLabelValues(event, direction).Inc()
}

func (m *Metrics) HTTPRequest(path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, strconv.Itoa(code)).Observe(d.Seconds())
}
