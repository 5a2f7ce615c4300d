package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsledger/backend/internal/service"
)

type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newMetrics(svc *service.Service) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}

	balance := func(main bool) func() float64 {
		return func() float64 {
			snapshot, _ := svc.Snapshot()
			v := snapshot.AdCashBalance
			if main {
				v = snapshot.MainCashBalance
			}
			return v.InexactFloat64()
		}
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ledger_main_cash_balance",
			Help: "Current main cash account balance",
		}, balance(true)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ledger_ad_cash_balance",
			Help: "Current ad cash account balance",
		}, balance(false)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ledger_snapshot_version",
			Help: "Version of the in-memory ledger snapshot",
		}, func() float64 {
			return float64(svc.SyncStatus().Version)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ledger_unsaved_changes",
			Help: "1 when the ledger has changes that are not persisted yet",
		}, func() float64 {
			if svc.Dirty() {
				return 1
			}
			return 0
		}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observe(r *http.Request, status int, elapsed time.Duration) {
	path := routeLabel(r.URL.Path)
	m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// routeLabel collapses entity ids so metric labels stay bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "v1" {
		return path
	}
	switch parts[2] {
	case "workers", "orders", "couriers":
		parts[3] = "{id}"
	case "reports":
		if len(parts) > 4 && parts[3] == "workers" {
			parts[4] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
