package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponValidationTotal counts coupon validation outcomes.
	CouponValidationTotal *prometheus.CounterVec
	// OrderCreateTotal counts gateway order creation attempts by mode and result.
	OrderCreateTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts signature verification outcomes.
	PaymentVerifyTotal *prometheus.CounterVec
	// SessionFailureTotal counts checkout sessions entering Failed, by kind.
	SessionFailureTotal *prometheus.CounterVec
	// OrderAmountMinor records charged order amounts in minor units.
	OrderAmountMinor *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers checkout Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponValidationTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_coupon_validation_total",
			Help:      "Count of coupon validation outcomes.",
		}, []string{"result"}))
		OrderCreateTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_order_create_total",
			Help:      "Count of gateway order creation attempts.",
		}, []string{"mode", "result"}))
		PaymentVerifyTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_payment_verify_total",
			Help:      "Count of payment signature verification outcomes.",
		}, []string{"result"}))
		SessionFailureTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_session_failure_total",
			Help:      "Count of checkout sessions that reached the Failed state.",
		}, []string{"kind"}))
		OrderAmountMinor = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_order_amount_minor",
			Help:      "Distribution of order amounts in minor currency units.",
			Buckets:   prometheus.ExponentialBuckets(10000, 4, 8),
		}, []string{"currency"}))
	})
}

// IncCoupon records a coupon validation result when metrics are registered.
func IncCoupon(result string) {
	if CouponValidationTotal != nil {
		CouponValidationTotal.WithLabelValues(result).Inc()
	}
}

// IncOrderCreate records an order creation result when metrics are registered.
func IncOrderCreate(mode, result string) {
	if OrderCreateTotal != nil {
		OrderCreateTotal.WithLabelValues(mode, result).Inc()
	}
}

// IncPaymentVerify records a verification result when metrics are registered.
func IncPaymentVerify(result string) {
	if PaymentVerifyTotal != nil {
		PaymentVerifyTotal.WithLabelValues(result).Inc()
	}
}

// IncSessionFailure records a session failure kind when metrics are registered.
func IncSessionFailure(kind string) {
	if SessionFailureTotal != nil {
		SessionFailureTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveOrderAmount records a charged amount when metrics are registered.
func ObserveOrderAmount(currency string, minor int64) {
	if OrderAmountMinor != nil {
		OrderAmountMinor.WithLabelValues(currency).Observe(float64(minor))
	}
}
