package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var confirmTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_confirm_total",
	Help: "Confirm outcomes: success (new application), retry (idempotent replay), fail.",
}, []string{"result"})
