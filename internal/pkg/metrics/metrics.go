// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 商城核心链路的业务指标，通过各服务的 /metrics 端点暴露。
var (
	ReservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_reservations_total",
		Help: "Stock reservation attempts by outcome (reserved/rejected/released/confirmed).",
	}, []string{"outcome"})

	OversellRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commerce_oversell_rejections_total",
		Help: "Reservation attempts rejected because available stock was insufficient.",
	})

	OrdersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commerce_orders_created_total",
		Help: "Orders successfully created through checkout.",
	})

	OrderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_order_transitions_total",
		Help: "Successful order status transitions.",
	}, []string{"from", "to"})

	SweeperReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commerce_sweeper_released_total",
		Help: "Expired reservations released back to the ledger by the sweeper.",
	})

	CheckoutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "commerce_checkout_duration_seconds",
		Help:    "End to end latency of order creation.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		ReservationsTotal,
		OversellRejectionsTotal,
		OrdersCreatedTotal,
		OrderTransitionsTotal,
		SweeperReleasedTotal,
		CheckoutDuration,
	)
}
