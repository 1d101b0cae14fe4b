package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.StoreHit()
		m.ExternalCall()
		m.FetchFailure()
		m.SharedFlight()
		m.ObserveResolution(OutcomeCache, time.Millisecond)
		m.Submission()
		m.MessageHandled("ack")
		m.BrokerReconnect()
		m.WebsocketConnected(1)
		m.ObserveRequest("/health", "200", time.Millisecond)
	})
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CacheHit()
	m.CacheHit()
	m.ExternalCall()
	m.MessageHandled("reject")
	m.ObserveResolution(OutcomeFetched, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExternalCallsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("reject")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ResolutionDuration))

	// 同じレジストリに2回は登録できない
	assert.Panics(t, func() { NewMetrics(reg) })
}
