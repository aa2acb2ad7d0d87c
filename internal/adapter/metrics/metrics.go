// Package metrics holds the Prometheus collectors of the wallet engine.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletd"

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "commands_total", Help: "Chat commands handled, by command and result code"},
		[]string{"command", "result"},
	)
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "command_duration_seconds", Help: "Time spent handling a chat command", Buckets: prometheus.DefBuckets},
		[]string{"command"},
	)
	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "withdrawals_total", Help: "Withdrawals by final status"},
		[]string{"status"},
	)
	SwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "swaps_total", Help: "Swaps by the last state reached"},
		[]string{"state"},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Chat notifications by backend and result"},
		[]string{"backend", "result"},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal, CommandDuration, WithdrawalsTotal, SwapsTotal, NotificationsTotal)
}

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Result maps an error code to a label value. An empty code means success.
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}
