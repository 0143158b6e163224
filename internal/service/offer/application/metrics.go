// internal/service/offer/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "offer_service",
		Name:      "batch_requests_total",
		Help:      "Batch create requests by result (created, replayed, rejected, conflict, error).",
	}, []string{"result"})

	offersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "offer_service",
		Name:      "offers_created_total",
		Help:      "Offers persisted by batch creates.",
	})
)
