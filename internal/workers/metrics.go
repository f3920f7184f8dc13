package workers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns the current pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	p.wg.RLock()
	defer p.wg.RUnlock()
	return *p.metrics
}

// RegisterMetrics exposes the pool counters and queue depth on reg.
func (p *WorkerPool) RegisterMetrics(namespace string, reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "workers", Name: "queue_size",
			Help: "Tasks waiting for a worker.",
		}, func() float64 { return float64(p.QueueSize()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workers", Name: "tasks_completed_total",
			Help: "Tasks finished without error.",
		}, func() float64 { return float64(p.Metrics().TasksCompleted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workers", Name: "tasks_failed_total",
			Help: "Tasks finished with an error.",
		}, func() float64 { return float64(p.Metrics().TasksFailed) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// incrementSubmitted increments the submitted task counter.
func (p *WorkerPool) incrementSubmitted() {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.TasksSubmitted++
}

// incrementCompleted increments the completed task counter.
func (p *WorkerPool) incrementCompleted() {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.TasksCompleted++
}

// incrementFailed increments the failed task counter.
func (p *WorkerPool) incrementFailed() {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.TasksFailed++
}

func (p *WorkerPool) incrementDropped() {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.ResultsDropped++
}

// recordDuration records task execution duration.
func (p *WorkerPool) recordDuration(d time.Duration) {
	p.wg.Lock()
	defer p.wg.Unlock()
	p.metrics.TotalDuration += d
}
