package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation tracking service.
// Metrics are organized by subsystem: polls, pipeline stages, discovery,
// oracles, artifacts, and events. All counters and histograms are registered
// via promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// PollsStarted counts discovery polls initiated, labeled by tracked alias.
	PollsStarted *prometheus.CounterVec

	// PollsCompleted counts polls that finished, labeled by tracked alias.
	PollsCompleted *prometheus.CounterVec

	// PollDuration observes end-to-end poll duration in seconds.
	PollDuration *prometheus.HistogramVec

	// PairsDiscovered counts new (tracked, citing) pairs entering the ledger.
	PairsDiscovered prometheus.Counter

	// PairsDeduplicated counts discovery results already present in the ledger.
	PairsDeduplicated prometheus.Counter

	// StageTransitions counts ledger stage transitions, labeled by target stage.
	StageTransitions *prometheus.CounterVec

	// StageConflicts counts conditional transitions lost to concurrent workers.
	StageConflicts prometheus.Counter

	// StageOneResults counts stage-one outcomes, labeled by result and mode.
	StageOneResults *prometheus.CounterVec

	// StageTwoResults counts stage-two outcomes, labeled by result.
	StageTwoResults *prometheus.CounterVec

	// ShortCircuits counts stage-two invocations avoided by a confident
	// stage-one result.
	ShortCircuits prometheus.Counter

	// Dispositions counts finalized dispositions, labeled by disposition.
	Dispositions *prometheus.CounterVec

	// SummariesWritten counts summary artifacts written.
	SummariesWritten prometheus.Counter

	// RecordsFailed counts records moved to the failed stage.
	RecordsFailed prometheus.Counter

	// RecordsExhausted counts records that hit the retry ceiling.
	RecordsExhausted prometheus.Counter

	// SourceRequestsTotal counts HTTP requests to external APIs, labeled by
	// source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source,
	// endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// LLMRequestsTotal counts oracle requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed oracle requests, labeled by operation,
	// model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes oracle request duration in seconds.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed, labeled by operation, model, and
	// token type.
	LLMTokensUsed *prometheus.CounterVec

	// EventsPublished counts pipeline events published to Kafka, labeled by
	// event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts pipeline events that could not be published.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Polls
		PollsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_started_total",
			Help:      "Total number of discovery polls started",
		}, []string{"tracked"}),
		PollsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_completed_total",
			Help:      "Total number of discovery polls completed",
		}, []string{"tracked"}),
		PollDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of discovery polls in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"tracked"}),

		// Ledger
		PairsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_discovered_total",
			Help:      "Total number of new (tracked, citing) pairs recorded",
		}),
		PairsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_deduplicated_total",
			Help:      "Total number of re-discovered pairs already in the ledger",
		}),
		StageTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Total number of ledger stage transitions by target stage",
		}, []string{"to_stage"}),
		StageConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_conflicts_total",
			Help:      "Total number of conditional transitions lost to concurrent workers",
		}),

		// Classification
		StageOneResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_one_results_total",
			Help:      "Total number of stage-one classifications by result and mode",
		}, []string{"result", "mode"}),
		StageTwoResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_two_results_total",
			Help:      "Total number of stage-two classifications by result",
		}, []string{"result"}),
		ShortCircuits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_circuits_total",
			Help:      "Total number of stage-two invocations avoided by confident stage-one results",
		}),
		Dispositions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispositions_total",
			Help:      "Total number of finalized dispositions",
		}, []string{"disposition"}),
		SummariesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_written_total",
			Help:      "Total number of summary artifacts written",
		}),
		RecordsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Total number of records moved to the failed stage",
		}),
		RecordsExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exhausted_total",
			Help:      "Total number of records that hit the retry ceiling",
		}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to external APIs",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to external APIs",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to external APIs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from external APIs",
		}, []string{"source"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of oracle requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed oracle requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of oracle requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by oracle operations",
		}, []string{"operation", "model", "token_type"}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of pipeline events published",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of pipeline events that failed to publish",
		}, []string{"event_type"}),
	}
}

// RecordPollStarted records that a discovery poll has started.
func (m *Metrics) RecordPollStarted(tracked string) {
	m.PollsStarted.WithLabelValues(tracked).Inc()
}

// RecordPollCompleted records that a discovery poll has completed.
func (m *Metrics) RecordPollCompleted(tracked string, durationSeconds float64) {
	m.PollsCompleted.WithLabelValues(tracked).Inc()
	m.PollDuration.WithLabelValues(tracked).Observe(durationSeconds)
}

// RecordPairDiscovered records a new pair entering the ledger.
func (m *Metrics) RecordPairDiscovered() {
	m.PairsDiscovered.Inc()
}

// RecordPairDeduplicated records a re-discovered pair.
func (m *Metrics) RecordPairDeduplicated() {
	m.PairsDeduplicated.Inc()
}

// RecordStageTransition records a successful ledger transition.
func (m *Metrics) RecordStageTransition(toStage string) {
	m.StageTransitions.WithLabelValues(toStage).Inc()
}

// RecordStageConflict records a lost conditional transition.
func (m *Metrics) RecordStageConflict() {
	m.StageConflicts.Inc()
}

// RecordStageOneResult records a stage-one classification outcome.
func (m *Metrics) RecordStageOneResult(result, mode string) {
	m.StageOneResults.WithLabelValues(result, mode).Inc()
}

// RecordStageTwoResult records a stage-two classification outcome.
func (m *Metrics) RecordStageTwoResult(result string) {
	m.StageTwoResults.WithLabelValues(result).Inc()
}

// RecordShortCircuit records a stage-two invocation avoided by stage one.
func (m *Metrics) RecordShortCircuit() {
	m.ShortCircuits.Inc()
}

// RecordDisposition records a finalized disposition.
func (m *Metrics) RecordDisposition(disposition string) {
	m.Dispositions.WithLabelValues(disposition).Inc()
}

// RecordSummaryWritten records a summary artifact write.
func (m *Metrics) RecordSummaryWritten() {
	m.SummariesWritten.Inc()
}

// RecordRecordFailed records a record moving to the failed stage.
func (m *Metrics) RecordRecordFailed() {
	m.RecordsFailed.Inc()
}

// RecordRecordExhausted records a record hitting the retry ceiling.
func (m *Metrics) RecordRecordExhausted() {
	m.RecordsExhausted.Inc()
}

// RecordSourceRequest records a request to an external API.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to an external API.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordLLMRequest records an oracle request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed oracle request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordEventPublished records a pipeline event published to Kafka.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records a pipeline event that failed to publish.
func (m *Metrics) RecordEventFailed(eventType string) {
	m.EventsFailed.WithLabelValues(eventType).Inc()
}
