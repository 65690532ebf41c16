// Package metrics records what a run did as Prometheus collectors.
//
// The tool exits after one pass, so instead of serving /metrics the registry is
// written once to a file for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "room_upgrader"

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RoomsTotal      *prometheus.CounterVec
	MembersTotal    *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LastRunSeconds  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		RoomsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_total",
			Help:      "Rooms processed, by outcome.",
		}, []string{"outcome"}),
		MembersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_total",
			Help:      "Membership migrations in successor rooms, by action and status.",
		}, []string{"action", "status"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Homeserver requests, by API method and HTTP status.",
		}, []string{"method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Homeserver request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	registry.MustRegister(m.RoomsTotal, m.MembersTotal, m.RequestsTotal, m.RequestDuration, m.LastRunSeconds)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one homeserver request. status 0 means no response.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRoom records the outcome of one room.
func (m *Metrics) ObserveRoom(outcome string) {
	m.RoomsTotal.WithLabelValues(outcome).Inc()
}

// ObserveMembers records successful and failed membership actions.
func (m *Metrics) ObserveMembers(action string, ok, failed int) {
	if ok > 0 {
		m.MembersTotal.WithLabelValues(action, "ok").Add(float64(ok))
	}
	if failed > 0 {
		m.MembersTotal.WithLabelValues(action, "failed").Add(float64(failed))
	}
}

// WriteTextfile stamps the run time and writes every collector to path.
func (m *Metrics) WriteTextfile(path string) error {
	m.LastRunSeconds.SetToCurrentTime()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
