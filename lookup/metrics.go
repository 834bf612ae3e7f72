package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_metadata_lookups_total",
	Help: "counter of metadata lookup calls by service and outcome",
}, []string{"service", "status"})
