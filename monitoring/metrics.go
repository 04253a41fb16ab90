package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tixhub_tickets",
			Help: "Current number of tickets per status",
		},
		[]string{"status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tixhub_active_goroutines",
			Help: "Current number of active goroutines",
		},
	)

	ticketOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tixhub_ticket_operations_total",
			Help: "Ticket operations by name and outcome kind",
		},
		[]string{"operation", "outcome"},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tixhub_ticket_deliveries_total",
			Help: "Ticket email deliveries by result",
		},
		[]string{"result"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tixhub_payment_gateway_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"call", "result"},
	)
)

// StatusCounter reports how many tickets sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

type Monitor struct {
	counter  StatusCounter
	interval time.Duration
}

func NewMonitor(counter StatusCounter, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{counter: counter, interval: interval}
}

// Run collects gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) Collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.counter == nil {
		return
	}
	counts, err := m.counter.CountByStatus(ctx)
	if err != nil {
		slog.Warn("collect ticket metrics", "error", err)
		return
	}
	for s, n := range counts {
		ticketsByStatus.WithLabelValues(s).Set(float64(n))
	}
}

// TrackOperation records the outcome of a ticket operation, "ok" or an error kind.
func TrackOperation(operation, outcome string) {
	ticketOperations.WithLabelValues(operation, outcome).Inc()
}

func TrackDelivery(ok bool) {
	if ok {
		deliveries.WithLabelValues("sent").Inc()
		return
	}
	deliveries.WithLabelValues("failed").Inc()
}

func TrackGatewayCall(call string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayDuration.WithLabelValues(call, result).Observe(time.Since(started).Seconds())
}
