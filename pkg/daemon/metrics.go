package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlie0129/saltlevel/pkg/alert"
	"github.com/charlie0129/saltlevel/pkg/notify"
	"github.com/charlie0129/saltlevel/pkg/wifi"
)

const metricsNamespace = "saltlevel"

type metrics struct {
	registry *prometheus.Registry

	distance      prometheus.Gauge
	percent       prometheus.Gauge
	measurements  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	alerted       prometheus.Gauge
	wifiState     *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "distance_cm",
			Help:      "Distance from the sensor to the salt surface of the last valid reading.",
		}),
		percent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "level_percent",
			Help:      "Fill level of the last reading with a defined percentage.",
		}),
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "measurements_total",
			Help:      "Measurement cycles by trigger and result.",
		}, []string{"trigger", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Notification channel attempts by result.",
		}, []string{"result"}),
		alerted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "alert_notified",
			Help:      "1 while a low-salt alert is outstanding.",
		}),
		wifiState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "wifi_state",
			Help:      "1 for the current connectivity state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.distance,
		m.percent,
		m.measurements,
		m.notifications,
		m.alerted,
		m.wifiState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) observeReading(r Reading) {
	result := "invalid"
	if r.Measurement.Valid {
		result = "valid"
		m.distance.Set(r.Measurement.Distance)
	}
	if r.Percent.Defined {
		m.percent.Set(r.Percent.Value)
	}
	m.measurements.WithLabelValues(r.Trigger, result).Inc()
}

func (m *metrics) observeNotify(res notify.Result) {
	m.notifications.WithLabelValues("success").Add(float64(res.Succeeded))
	m.notifications.WithLabelValues("failure").Add(float64(res.Attempted - res.Succeeded))
}

func (m *metrics) observeAlert(st alert.State) {
	if st.Notified {
		m.alerted.Set(1)
	} else {
		m.alerted.Set(0)
	}
}

func (m *metrics) observeWifi(current wifi.State) {
	for _, s := range []wifi.State{wifi.Disconnected, wifi.Connecting, wifi.Connected, wifi.Provisioning} {
		v := 0.0
		if s == current {
			v = 1
		}
		m.wifiState.WithLabelValues(s.String()).Set(v)
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
