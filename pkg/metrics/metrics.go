// Package metrics exposes run telemetry as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by the calibration runner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	samples        prometheus.Counter
	invalidSamples prometheus.Counter
	droppedChunks  prometheus.Counter
	bathErrors     *prometheus.CounterVec
	sensorErrors   prometheus.Counter
	runs           *prometheus.CounterVec
	running        prometheus.Gauge
	step           prometheus.Gauge
	dwelling       prometheus.Gauge
	reference      prometheus.Gauge
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermocal_ticks_total",
			Help: "Control ticks executed.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermocal_sensor_samples_total",
			Help: "Sensor samples decoded to a finite temperature.",
		}),
		invalidSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermocal_sensor_invalid_samples_total",
			Help: "Sensor samples that decoded to a non-finite value.",
		}),
		droppedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermocal_sensor_dropped_chunks_total",
			Help: "Raw sensor chunks dropped by the bounded queue.",
		}),
		bathErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermocal_bath_errors_total",
			Help: "Failed bath round trips by operation.",
		}, []string{"op"}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thermocal_sensor_read_errors_total",
			Help: "Failed sensor polls.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thermocal_runs_total",
			Help: "Finished runs by outcome.",
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermocal_running",
			Help: "1 while a run is active.",
		}),
		step: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermocal_step",
			Help: "Current 1-based step index.",
		}),
		dwelling: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermocal_dwelling",
			Help: "1 while the current step is in DWELL.",
		}),
		reference: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermocal_reference_temperature_celsius",
			Help: "Last bath temperature reading.",
		}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.samples,
		m.invalidSamples,
		m.droppedChunks,
		m.bathErrors,
		m.sensorErrors,
		m.runs,
		m.running,
		m.step,
		m.dwelling,
		m.reference,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Tick(step int, dwelling bool, reference float32) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.step.Set(float64(step))
	if dwelling {
		m.dwelling.Set(1)
	} else {
		m.dwelling.Set(0)
	}
	m.reference.Set(float64(reference))
}

func (m *Metrics) Samples(valid, invalid int) {
	if m == nil {
		return
	}
	m.samples.Add(float64(valid))
	m.invalidSamples.Add(float64(invalid))
}

func (m *Metrics) DroppedChunks(n int) {
	if m == nil || n == 0 {
		return
	}
	m.droppedChunks.Add(float64(n))
}

func (m *Metrics) BathError(op string) {
	if m == nil {
		return
	}
	m.bathErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SensorError() {
	if m == nil {
		return
	}
	m.sensorErrors.Inc()
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.running.Set(1)
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.dwelling.Set(0)
	m.runs.WithLabelValues(outcome).Inc()
}
