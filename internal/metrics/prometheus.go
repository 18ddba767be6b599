package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the speech stream service
type Metrics struct {
	// Transcription session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsFailed   prometheus.Counter
	SessionDuration  prometheus.Histogram
	SegmentsReceived prometheus.Counter
	SegmentsDeduped  prometheus.Counter

	// Capture metrics
	AudioChunksSent prometheus.Counter
	AudioBytesSent  prometheus.Counter

	// Playback metrics
	TTSStreams        prometheus.Counter
	TTSBytesReceived  prometheus.Counter
	PlaybackQueueSize prometheus.Gauge
	PlaybackUnderruns prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Transcription session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "speech_active_sessions",
			Help: "Current number of active transcription sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_sessions_created_total",
			Help: "Total number of transcription sessions created",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_sessions_failed_total",
			Help: "Total number of transcription sessions that ended in error",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "speech_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		SegmentsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_segments_received_total",
			Help: "Total number of transcript segment batches received",
		}),
		SegmentsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_segments_deduped_total",
			Help: "Total number of segment batches suppressed as duplicates",
		}),

		// Capture metrics
		AudioChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_audio_chunks_sent_total",
			Help: "Total number of captured audio chunks sent to sessions",
		}),
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_audio_bytes_sent_total",
			Help: "Total number of captured audio bytes sent to sessions",
		}),

		// Playback metrics
		TTSStreams: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_tts_streams_total",
			Help: "Total number of TTS streams started",
		}),
		TTSBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_tts_bytes_received_total",
			Help: "Total number of compressed TTS bytes received",
		}),
		PlaybackQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "speech_playback_queue_samples",
			Help: "Current number of decoded samples queued for playback",
		}),
		PlaybackUnderruns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "speech_playback_underruns_total",
			Help: "Total number of playback callbacks that ran out of samples",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speech_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "speech_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionFailed increments the failed sessions counter
func (m *Metrics) RecordSessionFailed() {
	m.SessionsFailed.Inc()
}

// RecordSessionClosed records the duration of a finished session
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegments records a received segment batch and whether it was
// suppressed as a duplicate
func (m *Metrics) RecordSegments(deduped bool) {
	m.SegmentsReceived.Inc()
	if deduped {
		m.SegmentsDeduped.Inc()
	}
}

// RecordAudioChunkSent records one captured chunk sent to a session
func (m *Metrics) RecordAudioChunkSent(sizeBytes int) {
	m.AudioChunksSent.Inc()
	m.AudioBytesSent.Add(float64(sizeBytes))
}

// RecordTTSStream increments the TTS streams counter
func (m *Metrics) RecordTTSStream() {
	m.TTSStreams.Inc()
}

// RecordTTSBytes records compressed bytes received from the TTS stream
func (m *Metrics) RecordTTSBytes(n int) {
	m.TTSBytesReceived.Add(float64(n))
}

// SetPlaybackQueueSize sets the current playback queue depth
func (m *Metrics) SetPlaybackQueueSize(samples int) {
	m.PlaybackQueueSize.Set(float64(samples))
}

// RecordPlaybackUnderrun increments the underrun counter
func (m *Metrics) RecordPlaybackUnderrun() {
	m.PlaybackUnderruns.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
