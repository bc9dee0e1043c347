package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giftcard_orders_submitted_total",
			Help: "Total gift card orders accepted by the provider",
		},
	)

	OrderFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giftcard_order_failures_total",
			Help: "Total gift card orders that failed to submit",
		},
	)

	BatchesUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recipient_batches_uploaded_total",
			Help: "Total spreadsheets successfully extracted and stored",
		},
	)

	UploadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipient_upload_failures_total",
			Help: "Total rejected uploads by reason",
		},
		[]string{"reason"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giftcard_reconciliations_total",
			Help: "Total order status refreshes by outcome",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "giftogram_request_duration_seconds",
			Help:    "Latency of gift card provider API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func Init() {
	prometheus.MustRegister(OrdersSubmitted)
	prometheus.MustRegister(OrderFailures)
	prometheus.MustRegister(BatchesUploaded)
	prometheus.MustRegister(UploadFailures)
	prometheus.MustRegister(Reconciliations)
	prometheus.MustRegister(ProviderRequestDuration)
}
