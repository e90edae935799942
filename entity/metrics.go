package entity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_entity_store_inconsistencies_total",
		Help: "Index entries found pointing at a missing record",
	}, []string{"entity"})

	casRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_entity_cas_retries_total",
		Help: "Optimistic write attempts lost to a concurrent writer",
	}, []string{"entity"})

	bulkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mess_entity_bulk_delete_failures_total",
		Help: "Ids a bulk delete could not remove",
	}, []string{"entity"})
)
