// Package metrics exports scheduling-engine counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"intent-scheduler/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "intent_scheduler"

// Claim results.
const (
	ClaimClaimed  = "claimed"
	ClaimConflict = "conflict"
	ClaimNotFound = "not_found"
	ClaimError    = "error"
)

// Recorder captures telemetry for engine operations.
type Recorder interface {
	TriggerCreated(kind models.Kind)
	TriggerDeleted(kind models.Kind)
	Claim(result string)
	Fire(kind models.Kind, status models.ExecutionStatus)
	FireDuplicate(kind models.Kind)
	CooldownBlocked(kind models.Kind)
	AutoDisabled(reason models.DisabledReason)
	PendingReturned(count int)
	Operation(op string, duration time.Duration, err error)
}

// PrometheusRecorder is a Recorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	triggersCreated   *prometheus.CounterVec
	triggersDeleted   *prometheus.CounterVec
	claims            *prometheus.CounterVec
	fires             *prometheus.CounterVec
	fireDuplicates    *prometheus.CounterVec
	cooldownBlocks    *prometheus.CounterVec
	autoDisabled      *prometheus.CounterVec
	pendingBatch      prometheus.Histogram
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the engine collectors with reg.
func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		triggersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_created_total",
			Help:      "Triggers created, by kind.",
		}, []string{"kind"}),
		triggersDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_deleted_total",
			Help:      "Triggers deleted, by kind.",
		}, []string{"kind"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts, by result.",
		}, []string{"result"}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fires_total",
			Help:      "Recorded fire outcomes, by kind and status.",
		}, []string{"kind", "status"}),
		fireDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fire_duplicates_total",
			Help:      "Fire reports ignored because their idempotency key was already recorded.",
		}, []string{"kind"}),
		cooldownBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fire_cooldown_blocks_total",
			Help:      "Condition fires suppressed by an active cooldown.",
		}, []string{"kind"}),
		autoDisabled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_auto_disabled_total",
			Help:      "Triggers disabled by the engine, by reason.",
		}, []string{"reason"}),
		pendingBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pending_batch_size",
			Help:      "Number of due triggers returned per pending query.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Engine operations that returned an error.",
		}, []string{"operation"}),
	}

	collectors := []prometheus.Collector{
		r.triggersCreated, r.triggersDeleted, r.claims, r.fires, r.fireDuplicates,
		r.cooldownBlocks, r.autoDisabled, r.pendingBatch, r.operationDuration, r.operationErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register scheduler metric: %w", err)
		}
	}
	return r, nil
}

// MustNewPrometheusRecorder is NewPrometheusRecorder that panics on error.
func MustNewPrometheusRecorder(namespace string, reg prometheus.Registerer) *PrometheusRecorder {
	r, err := NewPrometheusRecorder(namespace, reg)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *PrometheusRecorder) TriggerCreated(kind models.Kind) {
	r.triggersCreated.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) TriggerDeleted(kind models.Kind) {
	r.triggersDeleted.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) Claim(result string) {
	r.claims.WithLabelValues(result).Inc()
}

func (r *PrometheusRecorder) Fire(kind models.Kind, status models.ExecutionStatus) {
	r.fires.WithLabelValues(string(kind), string(status)).Inc()
}

func (r *PrometheusRecorder) FireDuplicate(kind models.Kind) {
	r.fireDuplicates.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) CooldownBlocked(kind models.Kind) {
	r.cooldownBlocks.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) AutoDisabled(reason models.DisabledReason) {
	r.autoDisabled.WithLabelValues(string(reason)).Inc()
}

func (r *PrometheusRecorder) PendingReturned(count int) {
	r.pendingBatch.Observe(float64(count))
}

// Operation tracks the latency and failure of a named engine operation.
func (r *PrometheusRecorder) Operation(op string, duration time.Duration, err error) {
	r.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		r.operationErrors.WithLabelValues(op).Inc()
	}
}

// Nop returns a Recorder that discards everything.
func Nop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) TriggerCreated(models.Kind) {}

func (nopRecorder) TriggerDeleted(models.Kind) {}

func (nopRecorder) Claim(string) {}

func (nopRecorder) Fire(models.Kind, models.ExecutionStatus) {}

func (nopRecorder) FireDuplicate(models.Kind) {}

func (nopRecorder) CooldownBlocked(models.Kind) {}

func (nopRecorder) AutoDisabled(models.DisabledReason) {}

func (nopRecorder) PendingReturned(int) {}

func (nopRecorder) Operation(string, time.Duration, error) {}
