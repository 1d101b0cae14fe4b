package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace 全メトリクスの名前空間
	MetricsNamespace = "placefinder"

	// OutcomeLabel 解決結果（cache / store / fetched / empty / failed）
	OutcomeLabel = "outcome"
	// EndpointLabel HTTPのルートパス
	EndpointLabel = "endpoint"
	// StatusLabel HTTPステータス
	StatusLabel = "status"
)

// 解決パイプラインの結果ラベル
const (
	OutcomeCache   = "cache"
	OutcomeStore   = "store"
	OutcomeFetched = "fetched"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// Metrics アプリケーションのPrometheusコレクター
//
// nil の *Metrics に対するメソッド呼び出しは何もしない（テストやCLIの submit で使う）。
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	StoreHitsTotal       prometheus.Counter
	ExternalCallsTotal   prometheus.Counter
	FetchFailuresTotal   prometheus.Counter
	SharedFlightsTotal   prometheus.Counter
	ResolutionDuration   *prometheus.HistogramVec
	SubmissionsTotal     prometheus.Counter
	MessagesConsumed     *prometheus.CounterVec
	BrokerReconnects     prometheus.Counter
	WebsocketConnections prometheus.Gauge
}

// NewMetrics reg に全コレクターを登録する
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{EndpointLabel, StatusLabel}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Response time for endpoints.",
			Buckets:   prometheus.DefBuckets,
		}, []string{EndpointLabel}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Number of resolutions answered from the in-process cache.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "cache_misses_total",
			Help:      "Number of resolutions that missed the in-process cache.",
		}),
		StoreHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "store_hits_total",
			Help:      "Number of resolutions answered from the persistent store.",
		}),
		ExternalCallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "places_api_calls_total",
			Help:      "Total number of external places API fetches.",
		}),
		FetchFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "places_api_failures_total",
			Help:      "Number of external fetches that failed after retries.",
		}),
		SharedFlightsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "shared_fetches_total",
			Help:      "Number of callers that joined an in-flight fetch instead of starting one.",
		}),
		ResolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "resolution_duration_seconds",
			Help:      "Duration of coordinate resolutions by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{OutcomeLabel}),
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "coordinates_saved_total",
			Help:      "Total number of coordinates submitted.",
		}),
		MessagesConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "queue_messages_total",
			Help:      "Queue messages handled by the consumer, by acknowledgement.",
		}, []string{"ack"}),
		BrokerReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "broker_reconnects_total",
			Help:      "Number of consumer reconnect attempts after broker failures.",
		}),
		WebsocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "websocket_connections",
			Help:      "Currently connected WebSocket clients.",
		}),
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) StoreHit() {
	if m != nil {
		m.StoreHitsTotal.Inc()
	}
}

func (m *Metrics) ExternalCall() {
	if m != nil {
		m.ExternalCallsTotal.Inc()
	}
}

func (m *Metrics) FetchFailure() {
	if m != nil {
		m.FetchFailuresTotal.Inc()
	}
}

func (m *Metrics) SharedFlight() {
	if m != nil {
		m.SharedFlightsTotal.Inc()
	}
}

func (m *Metrics) ObserveResolution(outcome string, d time.Duration) {
	if m != nil {
		m.ResolutionDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) Submission() {
	if m != nil {
		m.SubmissionsTotal.Inc()
	}
}

// MessageHandled ack は "ack" / "reject" / "requeue"
func (m *Metrics) MessageHandled(ack string) {
	if m != nil {
		m.MessagesConsumed.WithLabelValues(ack).Inc()
	}
}

func (m *Metrics) BrokerReconnect() {
	if m != nil {
		m.BrokerReconnects.Inc()
	}
}

func (m *Metrics) WebsocketConnected(delta float64) {
	if m != nil {
		m.WebsocketConnections.Add(delta)
	}
}

func (m *Metrics) ObserveRequest(endpoint, status string, d time.Duration) {
	if m != nil {
		m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
		m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}
