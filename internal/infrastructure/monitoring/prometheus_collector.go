package monitoring

import (
	"streamcast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Counters
	sessionsActiveTotal  prometheus.Gauge
	viewersConnectedTotal prometheus.Gauge
	bytesIngestedTotal   prometheus.Counter
	encoderFailuresTotal prometheus.Counter
	chatMessagesTotal    prometheus.Counter
	rejectedPublishTotal prometheus.Counter

	// Histograms
	sessionDuration prometheus.Histogram

	// Per-session metrics
	sessionBitrate     *prometheus.GaugeVec
	sessionViewerCount *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_sessions_active_total",
			Help: "Total number of active ingest sessions",
		}),

		viewersConnectedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "streamcast_viewers_connected_total",
			Help: "Total number of connected viewers",
		}),

		bytesIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_bytes_ingested_total",
			Help: "Total media bytes accepted from broadcasters",
		}),

		encoderFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_encoder_failures_total",
			Help: "Total number of encoder subprocess failures",
		}),

		chatMessagesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_chat_messages_total",
			Help: "Total number of accepted chat messages",
		}),

		rejectedPublishTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "streamcast_rejected_publish_total",
			Help: "Total number of rejected publish attempts",
		}),

		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamcast_session_duration_seconds",
			Help:    "Duration of completed ingest sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),

		sessionBitrate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamcast_session_bitrate_kbps",
			Help: "Measured ingest bitrate of sessions in kilobits per second",
		}, []string{"stream_key"}),

		sessionViewerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamcast_session_viewer_count",
			Help: "Number of viewers per session",
		}, []string{"stream_key"}),
	}
}

func (p *PrometheusCollector) RecordSessionStarted(key domain.StreamKey) {
	p.sessionsActiveTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded(key domain.StreamKey, durationSeconds float64) {
	p.sessionsActiveTotal.Dec()
	p.sessionDuration.Observe(durationSeconds)

	p.sessionBitrate.DeleteLabelValues(string(key))
	p.sessionViewerCount.DeleteLabelValues(string(key))
}

func (p *PrometheusCollector) RecordBytesIngested(n int64) {
	p.bytesIngestedTotal.Add(float64(n))
}

func (p *PrometheusCollector) RecordEncoderFailure() {
	p.encoderFailuresTotal.Inc()
}

func (p *PrometheusCollector) RecordChatMessage() {
	p.chatMessagesTotal.Inc()
}

func (p *PrometheusCollector) RecordRejectedPublish() {
	p.rejectedPublishTotal.Inc()
}

func (p *PrometheusCollector) RecordViewerJoined() {
	p.viewersConnectedTotal.Inc()
}

func (p *PrometheusCollector) RecordViewerLeft() {
	p.viewersConnectedTotal.Dec()
}

func (p *PrometheusCollector) UpdateSessionBitrate(key domain.StreamKey, kbps float64) {
	p.sessionBitrate.WithLabelValues(string(key)).Set(kbps)
}

func (p *PrometheusCollector) UpdateSessionViewers(key domain.StreamKey, count int) {
	p.sessionViewerCount.WithLabelValues(string(key)).Set(float64(count))
}
