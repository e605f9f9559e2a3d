// Package metrics exposes the Prometheus instruments updated during
// operation:
//   - pilot_signals_total{event,status}    – inbound signals by handler outcome
//   - pilot_advisor_verdicts_total{answer} – advisor consultations by verdict
//   - pilot_orders_total{side,kind}        – orders submitted (entry|close)
//   - pilot_monitor_triggers_total{reason} – monitor-initiated closes (TP|SL)
//   - pilot_open_positions                 – currently open positions (gauge)
//   - pilot_realized_pnl_usd               – cumulative realized PnL snapshot
//
// Instruments are registered in init() and served by the webhook mux at
// /metrics in the Prometheus text exposition format.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_signals_total",
			Help: "Inbound signals by event and handler outcome",
		},
		[]string{"event", "status"},
	)

	advisorVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_advisor_verdicts_total",
			Help: "Advisor consultations by normalized verdict",
		},
		[]string{"answer"},
	)

	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_orders_total",
			Help: "Orders submitted to the exchange",
		},
		[]string{"side", "kind"}, // side: long|short, kind: entry|close
	)

	monitorTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pilot_monitor_triggers_total",
			Help: "Monitor-initiated closes by triggering reason",
		},
		[]string{"reason"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_open_positions",
			Help: "Number of currently open positions",
		},
	)

	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pilot_realized_pnl_usd",
			Help: "Cumulative realized PnL across all closed trades",
		},
	)
)

func init() {
	prometheus.MustRegister(signals, advisorVerdicts, orders)
	prometheus.MustRegister(monitorTriggers, openPositions, realizedPnL)
}

// IncSignal counts one handled signal with its final status.
func IncSignal(event, status string) { signals.WithLabelValues(event, status).Inc() }

// IncAdvisorVerdict counts one advisor consultation by its normalized answer.
func IncAdvisorVerdict(answer string) { advisorVerdicts.WithLabelValues(answer).Inc() }

// IncOrder counts one submitted order.
func IncOrder(side, kind string) { orders.WithLabelValues(side, kind).Inc() }

// IncMonitorTrigger counts one monitor-initiated close.
func IncMonitorTrigger(reason string) { monitorTriggers.WithLabelValues(reason).Inc() }

// SetOpenPositions updates the open position gauge.
func SetOpenPositions(n int) { openPositions.Set(float64(n)) }

// SetRealizedPnL updates the cumulative realized PnL snapshot.
func SetRealizedPnL(v float64) { realizedPnL.Set(v) }
