package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the detection and lifecycle
// engines.
type Metrics struct {
	registry *prometheus.Registry

	// Market data plumbing
	CandlesFetched   prometheus.Counter
	ExchangeFetchDur prometheus.Histogram
	ExchangeErrors   prometheus.Counter
	KlineCacheHits   prometheus.Gauge

	// Detection engine
	EvaluationsTotal *prometheus.CounterVec // labels: symbol, timeframe
	EvaluationDur    prometheus.Histogram
	SetupsCreated    *prometheus.CounterVec // labels: direction
	SetupsRemoved    *prometheus.CounterVec // labels: reason
	ActiveSetups     prometheus.Gauge

	// Lifecycle engine
	PositionsOpened *prometheus.CounterVec // labels: direction
	PositionsClosed *prometheus.CounterVec // labels: reason
	ExitSignals     *prometheus.CounterVec // labels: reason
	ActivePositions prometheus.Gauge
	Balance         prometheus.Gauge
	PeakBalance     prometheus.Gauge
	MaxDrawdown     prometheus.Gauge
	TotalPnL        prometheus.Gauge

	// Guard rails
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	// Persistence
	StoreWriteDur prometheus.Histogram
	StoreErrors   prometheus.Counter

	// API surface
	WSClients prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics on a private
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CandlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "impulsebot_candles_fetched_total",
			Help: "Total candles fetched from the exchange",
		}),
		ExchangeFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "impulsebot_exchange_fetch_duration_seconds",
			Help:    "Kline fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		ExchangeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "impulsebot_exchange_errors_total",
			Help: "Failed exchange requests",
		}),
		KlineCacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_kline_cache_hits",
			Help: "Kline requests served from the cache since start",
		}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_evaluations_total",
			Help: "Detection cycles run (by symbol and timeframe)",
		}, []string{"symbol", "timeframe"}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "impulsebot_evaluation_duration_seconds",
			Help:    "Detection cycle latency per symbol",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		SetupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_setups_created_total",
			Help: "Setups created (by direction)",
		}, []string{"direction"}),
		SetupsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_setups_removed_total",
			Help: "Setups retired (by played-out reason)",
		}, []string{"reason"}),
		ActiveSetups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_active_setups",
			Help: "Currently tracked setups",
		}),

		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_positions_opened_total",
			Help: "Positions opened (by direction)",
		}, []string{"direction"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_positions_closed_total",
			Help: "Positions closed (by exit reason)",
		}, []string{"reason"}),
		ExitSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impulsebot_exit_signals_total",
			Help: "Exit conditions signalled (by reason)",
		}, []string{"reason"}),
		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_active_positions",
			Help: "Currently open positions",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_balance",
			Help: "Available account balance",
		}),
		PeakBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_peak_balance",
			Help: "Balance high-water mark",
		}),
		MaxDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_max_drawdown_percent",
			Help: "Maximum drawdown from the peak balance",
		}),
		TotalPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_total_pnl",
			Help: "Cumulative realized P&L",
		}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "impulsebot_circuit_breaker_trips_total",
			Help: "Times the circuit breaker tripped open",
		}),

		StoreWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "impulsebot_store_write_duration_seconds",
			Help:    "Persistence write latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "impulsebot_store_errors_total",
			Help: "Failed persistence operations",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impulsebot_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	m.registry.MustRegister(
		m.CandlesFetched,
		m.ExchangeFetchDur,
		m.ExchangeErrors,
		m.KlineCacheHits,
		m.EvaluationsTotal,
		m.EvaluationDur,
		m.SetupsCreated,
		m.SetupsRemoved,
		m.ActiveSetups,
		m.PositionsOpened,
		m.PositionsClosed,
		m.ExitSignals,
		m.ActivePositions,
		m.Balance,
		m.PeakBalance,
		m.MaxDrawdown,
		m.TotalPnL,
		m.BreakerState,
		m.BreakerTrips,
		m.StoreWriteDur,
		m.StoreErrors,
		m.WSClients,
	)

	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBreakerState maps a breaker state string onto the numeric gauge.
func (m *Metrics) SetBreakerState(state string) {
	switch state {
	case "open":
		m.BreakerState.Set(1)
	case "half_open":
		m.BreakerState.Set(2)
	default:
		m.BreakerState.Set(0)
	}
}
