package intent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compensationRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_compensation_requested_total",
		Help: "Number of intents flagged for compensation after a post-payment failure.",
	})

	compensationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_compensation_total",
		Help: "Compensation outcomes by result.",
	}, []string{"result"})
)
