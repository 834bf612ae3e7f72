package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_downloads_total",
	Help: "counter of full-text download attempts by transport and outcome",
}, []string{"transport", "status"})

var archivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_pmc_archives_total",
	Help: "counter of unpacked PMC open-access archives by outcome",
}, []string{"status"})
