// internal/metrics/metrics.go
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/modbus-fleetmon/internal/alarm"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
)

const namespace = "fleetmon"

// Recorder exports engine counters and the latest snapshot values.
// It satisfies the supervisor's Observer.
type Recorder struct {
	cycles       *prometheus.CounterVec
	readFailures *prometheus.CounterVec
	writes       *prometheus.CounterVec
	stuck        prometheus.Counter

	value     *prometheus.GaugeVec
	band      *prometheus.GaugeVec
	reachable *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by outcome.",
		}, []string{"device", "result"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed register group reads.",
		}, []string{"device", "group"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_writes_total",
			Help:      "Command and setpoint writes by outcome.",
		}, []string{"device", "kind", "result"}),
		stuck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_stuck_workers_total",
			Help:      "Pollers that did not terminate within the stop timeout.",
		}),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Last decoded metric value.",
		}, []string{"device", "metric"}),
		band: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_band",
			Help:      "Metric band: 0 unknown, 1 normal, 2 caution, 3 fault.",
		}, []string{"device", "metric"}),
		reachable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_reachable",
			Help:      "1 when the last cycle reached the device.",
		}, []string{"device"}),
	}

	for _, c := range []prometheus.Collector{
		r.cycles, r.readFailures, r.writes, r.stuck, r.value, r.band, r.reachable,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ---- observer ----

func (r *Recorder) CycleCompleted(device string, health status.Health) {
	r.cycles.WithLabelValues(device, health.String()).Inc()
}

func (r *Recorder) ReadFailed(device, group string) {
	r.readFailures.WithLabelValues(device, group).Inc()
}

func (r *Recorder) CommandWritten(device, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.writes.WithLabelValues(device, kind, result).Inc()
}

func (r *Recorder) WorkerStuck(string) {
	r.stuck.Inc()
}

// ---- gauges ----

// Observe mirrors a snapshot into the gauges. Values of unknown metrics
// are left at their last known reading; the band gauge says unknown.
func (r *Recorder) Observe(s status.Snapshot) {
	reach := 1.0
	if s.Health == status.HealthUnreachable {
		reach = 0
	}
	r.reachable.WithLabelValues(s.Device).Set(reach)

	for _, m := range s.Metrics {
		if m.Known {
			r.value.WithLabelValues(s.Device, m.Name).Set(m.Value)
		}
		r.band.WithLabelValues(s.Device, m.Name).Set(bandValue(m.Band))
	}
}

// DeviceRemoved drops every gauge series of a removed device.
func (r *Recorder) DeviceRemoved(device string) {
	l := prometheus.Labels{"device": device}
	r.value.DeletePartialMatch(l)
	r.band.DeletePartialMatch(l)
	r.reachable.DeletePartialMatch(l)
}

// Watch feeds gauges from a snapshot subscription until ctx ends or the
// channel closes.
func (r *Recorder) Watch(ctx context.Context, snaps <-chan status.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			r.Observe(s)
		}
	}
}

func bandValue(b alarm.Band) float64 {
	switch b {
	case alarm.Normal:
		return 1
	case alarm.Caution:
		return 2
	case alarm.Fault:
		return 3
	}
	return 0
}
