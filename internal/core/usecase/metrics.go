package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "walletd",
	Name:      "operations_total",
	Help:      "Ledger operations by name and outcome.",
}, []string{"operation", "result"})

func observe(operation string, err error) {
	result := "success"
	switch {
	case err == nil:
	case IsClientError(err):
		result = "rejected"
	default:
		result = "error"
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
