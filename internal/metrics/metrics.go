// Package metrics exposes coordinator activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

const namespace = "graylogic_vacuumzones"

// Recorder implements vacuum.Recorder with Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	startRequests  *prometheus.CounterVec
	pendingRooms   *prometheus.GaugeVec
	batchesCleared *prometheus.CounterVec
	droppedRooms   *prometheus.CounterVec
	commands       *prometheus.CounterVec
	batchSize      *prometheus.HistogramVec
	ackLatency     *prometheus.HistogramVec
}

// New creates a Recorder on its own registry, with build info and Go
// runtime collectors registered.
func New(version string) *Recorder {
	masterLabels := []string{"master_id"}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		startRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_requests_total",
			Help:      "Room start requests by result (accepted or the rejection reason)",
		}, []string{"master_id", "result"}),
		pendingRooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_rooms",
			Help:      "Rooms waiting in the master's current batch",
		}, masterLabels),
		batchesCleared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_cleared_total",
			Help:      "Pending batches dropped by stop or return home",
		}, masterLabels),
		droppedRooms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_rooms_total",
			Help:      "Rooms dropped from pending batches by stop or return home",
		}, masterLabels),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to masters by kind and outcome",
		}, []string{"master_id", "kind", "status"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rooms",
			Help:      "Rooms per segment clean command",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}, masterLabels),
		ackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_ack_seconds",
			Help:      "Time from publishing a command to its acknowledgement or failure",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9),
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		r.startRequests,
		r.pendingRooms,
		r.batchesCleared,
		r.droppedRooms,
		r.commands,
		r.batchSize,
		r.ackLatency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"version": version},
		}, func() float64 { return 1 }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StartAccepted counts an accepted room start.
func (r *Recorder) StartAccepted(master vacuum.MasterID) {
	r.startRequests.WithLabelValues(string(master), "accepted").Inc()
}

// StartRejected counts a rejected room start.
func (r *Recorder) StartRejected(master vacuum.MasterID, reason string) {
	r.startRequests.WithLabelValues(string(master), reason).Inc()
}

// PendingRooms sets the size of master's pending batch.
func (r *Recorder) PendingRooms(master vacuum.MasterID, n int) {
	r.pendingRooms.WithLabelValues(string(master)).Set(float64(n))
}

// BatchCleared counts a dropped batch.
func (r *Recorder) BatchCleared(master vacuum.MasterID, dropped int) {
	r.batchesCleared.WithLabelValues(string(master)).Inc()
	r.droppedRooms.WithLabelValues(string(master)).Add(float64(dropped))
}

// CommandSent records one command and its acknowledgement latency.
func (r *Recorder) CommandSent(master vacuum.MasterID, kind vacuum.CommandKind, rooms int, err error, latency time.Duration) {
	status := vacuum.DispatchAcknowledged
	if err != nil {
		status = vacuum.DispatchFailed
	}
	r.commands.WithLabelValues(string(master), string(kind), status).Inc()
	r.ackLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
	if kind == vacuum.KindSegmentClean {
		r.batchSize.WithLabelValues(string(master)).Observe(float64(rooms))
	}
}
