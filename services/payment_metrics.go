package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_payment_orders_created_total",
		Help: "Gateway orders created",
	})

	paymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_payments_recorded_total",
		Help: "Ledger entries written, by method",
	}, []string{"method"})

	verifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_payment_verifications_total",
		Help: "Payment verification attempts, by outcome",
	}, []string{"outcome"})

	gatewayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mess_payment_gateway_failures_total",
		Help: "Order creations that failed at the gateway",
	})
)

// PaymentMetrics is an in-process snapshot for the manager dashboard.
type PaymentMetrics struct {
	OrdersCreated      int64 `json:"ordersCreated"`
	SuccessfulPayments int64 `json:"successfulPayments"`
	DuplicateCallbacks int64 `json:"duplicateCallbacks"`
	RejectedPayments   int64 `json:"rejectedPayments"`
	GatewayFailures    int64 `json:"gatewayFailures"`
}

// PaymentMonitor counts ledger outcomes both locally and in Prometheus.
type PaymentMonitor struct {
	mu      sync.Mutex
	metrics PaymentMetrics
}

func NewPaymentMonitor() *PaymentMonitor {
	return &PaymentMonitor{}
}

func (pm *PaymentMonitor) orderCreated() {
	ordersCreated.Inc()
	pm.mu.Lock()
	pm.metrics.OrdersCreated++
	pm.mu.Unlock()
}

func (pm *PaymentMonitor) gatewayFailed() {
	gatewayFailures.Inc()
	pm.mu.Lock()
	pm.metrics.GatewayFailures++
	pm.mu.Unlock()
}

func (pm *PaymentMonitor) recorded(method string) {
	paymentsRecorded.WithLabelValues(method).Inc()
	pm.mu.Lock()
	pm.metrics.SuccessfulPayments++
	pm.mu.Unlock()
}

// verified records the outcome of one verification: recorded, duplicate,
// signature_invalid or rejected.
func (pm *PaymentMonitor) verified(outcome string) {
	verifyOutcomes.WithLabelValues(outcome).Inc()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	switch outcome {
	case "duplicate":
		pm.metrics.DuplicateCallbacks++
	case "signature_invalid", "rejected":
		pm.metrics.RejectedPayments++
	}
}

// GetMetrics returns the current counters.
func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.metrics
}
