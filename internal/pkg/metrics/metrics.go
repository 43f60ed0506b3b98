package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "hydronom"

// Metrics holds the relay's collectors. All methods are safe on a nil
// receiver so components can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	// FanoutDropped counts events dropped from a subscriber's buffer, labelled
	// with the subscriber name supplied at subscribe time.
	FanoutDropped *prometheus.CounterVec
	Subscriptions prometheus.Gauge

	AuditDropped  prometheus.Counter
	AuditDegraded prometheus.Gauge
	AuditBuffered prometheus.Gauge
	AuditFlushed  prometheus.Counter

	CommandRejections *prometheus.CounterVec
	CommandDispatched *prometheus.CounterVec
	CommandLatency    *prometheus.HistogramVec

	// QueueDepth is the number of callers waiting for, or holding, a
	// vehicle's partition.
	QueueDepth *prometheus.GaugeVec

	TelemetryReceived  *prometheus.CounterVec
	MissionTransitions *prometheus.CounterVec

	Vehicles       prometheus.Gauge
	VehiclesReaped prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FanoutDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_dropped_events_total",
			Help:      "Events dropped from a slow subscriber's buffer.",
		}, []string{"subscriber"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Open fan-out subscriptions.",
		}),

		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_records_total",
			Help:      "Audit records dropped because the buffer overflowed while the sink was unavailable.",
		}),
		AuditDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_sink_degraded",
			Help:      "1 while the audit sink is failing, 0 otherwise.",
		}),
		AuditBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_buffered_records",
			Help:      "Audit records waiting to be written to the sink.",
		}),
		AuditFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_flushed_records_total",
			Help:      "Audit records acknowledged by the sink.",
		}),

		CommandRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_rejections_total",
			Help:      "Rejected commands by reason.",
		}, []string{"reason"}),
		CommandDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dispatched_total",
			Help:      "Commands sequenced and fanned out, by type.",
		}, []string{"type"}),
		CommandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_enqueue_seconds",
			Help:      "Time from enqueue to dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vehicle_queue_depth",
			Help:      "Operations waiting for, or holding, a vehicle's partition.",
		}, []string{"vehicle"}),

		TelemetryReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_received_total",
			Help:      "Telemetry snapshots received; applied=false for stale snapshots.",
		}, []string{"applied"}),
		MissionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_transitions_total",
			Help:      "Successful mission lifecycle actions.",
		}, []string{"action"}),

		Vehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vehicles",
			Help:      "Vehicles currently tracked by the state store.",
		}),
		VehiclesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vehicles_reaped_total",
			Help:      "Idle vehicles removed from the state store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FanoutDropped, m.Subscriptions,
		m.AuditDropped, m.AuditDegraded, m.AuditBuffered, m.AuditFlushed,
		m.CommandRejections, m.CommandDispatched, m.CommandLatency, m.QueueDepth,
		m.TelemetryReceived, m.MissionTransitions,
		m.Vehicles, m.VehiclesReaped,
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) ObserveDropped(subscriber string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FanoutDropped.WithLabelValues(subscriber).Add(float64(n))
}

func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.Subscriptions.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.Subscriptions.Dec()
	}
}

func (m *Metrics) ObserveAuditDropped(n int) {
	if m != nil && n > 0 {
		m.AuditDropped.Add(float64(n))
	}
}

func (m *Metrics) SetAuditDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.AuditDegraded.Set(1)
	} else {
		m.AuditDegraded.Set(0)
	}
}

func (m *Metrics) SetAuditBuffered(n int) {
	if m != nil {
		m.AuditBuffered.Set(float64(n))
	}
}

func (m *Metrics) ObserveAuditFlushed(n int) {
	if m != nil {
		m.AuditFlushed.Add(float64(n))
	}
}

func (m *Metrics) ObserveRejection(reason string) {
	if m != nil {
		m.CommandRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) ObserveDispatch(commandType string, seconds float64) {
	if m == nil {
		return
	}
	m.CommandDispatched.WithLabelValues(commandType).Inc()
	m.CommandLatency.WithLabelValues(commandType).Observe(seconds)
}

func (m *Metrics) SetQueueDepth(vehicleID string, depth int64) {
	if m != nil {
		m.QueueDepth.WithLabelValues(vehicleID).Set(float64(depth))
	}
}

// ForgetVehicle drops the per-vehicle series of a reaped vehicle.
func (m *Metrics) ForgetVehicle(vehicleID string) {
	if m != nil {
		m.QueueDepth.DeleteLabelValues(vehicleID)
	}
}

func (m *Metrics) ObserveTelemetry(applied bool) {
	if m != nil {
		m.TelemetryReceived.WithLabelValues(strconv.FormatBool(applied)).Inc()
	}
}

func (m *Metrics) ObserveTransition(action string) {
	if m != nil {
		m.MissionTransitions.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) SetVehicles(n int) {
	if m != nil {
		m.Vehicles.Set(float64(n))
	}
}

func (m *Metrics) ObserveReaped(n int) {
	if m != nil && n > 0 {
		m.VehiclesReaped.Add(float64(n))
	}
}
