package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.APIRequest("item", nil)
	m.APIRequest("item", errors.New("boom"))
	m.APIRequest("item", nil)
	m.CacheLookup("page", true)
	m.Coalesced()
	m.StorageFailure("favorites")
	m.ChannelMessage("battle:state", "in")
	m.HTTPRequest("/pokedex.v1.Pokedex/GetItem", 200, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("item", "ok")); got != 2 {
		t.Fatalf("expected 2 ok item requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("item", "error")); got != 1 {
		t.Fatalf("expected 1 failed item request, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("page", "hit")); got != 1 {
		t.Fatalf("expected 1 page hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.coalesced); got != 1 {
		t.Fatalf("expected 1 coalesced request, got %v", got)
	}
	if got := testutil.ToFloat64(m.channelMsgs.WithLabelValues("battle:state", "in")); got != 1 {
		t.Fatalf("expected 1 inbound state message, got %v", got)
	}
	if got := testutil.CollectAndCount(m.httpRequests); got != 1 {
		t.Fatalf("expected 1 http series, got %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.APIRequest("item", nil)
	m.CacheLookup("page", false)
	m.Coalesced()
	m.StorageFailure("favorites")
	m.ChannelMessage("find_match", "out")
	m.HTTPRequest("/metrics", 200, time.Millisecond)
}
