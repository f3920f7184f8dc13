package archive

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduler counters to Prometheus. A nil *Metrics is a no-op.
type Metrics struct {
	archivedTotal  prometheus.Counter
	failedTotal    prometheus.Counter
	batchesTotal   *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	nextDelay      prometheus.Histogram
	jobState       *prometheus.GaugeVec
	queueSize      prometheus.Gauge
	rateLimits     prometheus.Counter
	quotaWaits     *prometheus.CounterVec
	exportsTotal   *prometheus.CounterVec
	staleDiscarded prometheus.Counter
}

// InitPrometheusMetrics creates and registers the archive metrics.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		archivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_messages_archived_total",
			Help:      "Messages stored in the archive",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_messages_failed_total",
			Help:      "Messages the sink refused to store",
		}),
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_batches_total",
			Help:      "Batches by outcome",
		}, []string{"outcome"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Archived bytes by kind (text, media)",
		}, []string{"kind"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_batch_duration_seconds",
			Help:      "Wall time of one batch fetch",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		}),
		nextDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_next_delay_seconds",
			Help:      "Scheduled delay before the next batch",
			Buckets:   []float64{1, 3, 5, 10, 15, 30, 60, 120, 300, 600, 3600},
		}),
		jobState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_job_state",
			Help:      "1 for the current scheduler state, 0 otherwise",
		}, []string{"state"}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_queue_size",
			Help:      "Chats waiting for the active slot",
		}),
		rateLimits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_rate_limits_total",
			Help:      "Flood-wait signals received from the source",
		}),
		quotaWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_quota_waits_total",
			Help:      "Batches deferred by the hourly or daily quota",
		}, []string{"quota"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_exports_total",
			Help:      "Completion exports by outcome",
		}, []string{"outcome"}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_stale_results_discarded_total",
			Help:      "Fetch results dropped because their job was cancelled",
		}),
	}

	reg.MustRegister(
		m.archivedTotal,
		m.failedTotal,
		m.batchesTotal,
		m.bytesTotal,
		m.batchDuration,
		m.nextDelay,
		m.jobState,
		m.queueSize,
		m.rateLimits,
		m.quotaWaits,
		m.exportsTotal,
		m.staleDiscarded,
	)

	return m
}

func (m *Metrics) recordBatch(res FetchResult, outcome string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(outcome).Inc()
	m.archivedTotal.Add(float64(res.Archived))
	m.failedTotal.Add(float64(res.Failed))
	m.bytesTotal.WithLabelValues("text").Add(float64(res.Bytes))
	m.bytesTotal.WithLabelValues("media").Add(float64(res.MediaBytes))
	m.batchDuration.Observe(res.Duration.Seconds())
}

func (m *Metrics) recordDelay(d time.Duration) {
	if m == nil {
		return
	}
	m.nextDelay.Observe(d.Seconds())
}

func (m *Metrics) setState(state State) {
	if m == nil {
		return
	}
	for _, s := range AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.jobState.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) setQueueSize(n int) {
	if m == nil {
		return
	}
	m.queueSize.Set(float64(n))
}

func (m *Metrics) recordRateLimit() {
	if m == nil {
		return
	}
	m.rateLimits.Inc()
}

func (m *Metrics) recordQuotaWait(quota string) {
	if m == nil {
		return
	}
	m.quotaWaits.WithLabelValues(quota).Inc()
}

func (m *Metrics) recordExport(outcome string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordStale() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}
