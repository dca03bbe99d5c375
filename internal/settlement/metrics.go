package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var payoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "settlement_payout_total",
	Help: "Payout request outcomes by result.",
}, []string{"result"})
