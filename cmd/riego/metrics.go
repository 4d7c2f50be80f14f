package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/lologarithm/riego/riego"
)

type metrics struct {
	registry       *prometheus.Registry
	humidity       prometheus.Gauge
	temp           prometheus.Gauge
	pumpOn         prometheus.Gauge
	waterings      *prometheus.CounterVec
	pumpSeconds    prometheus.Counter
	sensorFailures prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riego_humidity_percent",
			Help: "Last filtered relative humidity reading.",
		}),
		temp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riego_temperature_celsius",
			Help: "Averaged temperature reading.",
		}),
		pumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riego_pump_on",
			Help: "1 while the pump is running.",
		}),
		waterings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riego_waterings_total",
			Help: "Pump runs by reason.",
		}, []string{"reason"}),
		pumpSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riego_pump_seconds_total",
			Help: "Total time the pump has been on.",
		}),
		sensorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riego_sensor_failures_total",
			Help: "Loop passes without a usable sensor reading.",
		}),
	}
	m.registry.MustRegister(m.humidity, m.temp, m.pumpOn, m.waterings, m.pumpSeconds, m.sensorFailures)
	return m
}

func (m *metrics) reading(r riego.Reading) {
	m.humidity.Set(float64(r.Humidity))
	m.temp.Set(float64(r.Temp))
}

func (m *metrics) pump(on bool) {
	if on {
		m.pumpOn.Set(1)
	} else {
		m.pumpOn.Set(0)
	}
}

func (m *metrics) watered(reason riego.Reason, ran time.Duration) {
	m.waterings.WithLabelValues(reason.String()).Inc()
	m.pumpSeconds.Add(ran.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
