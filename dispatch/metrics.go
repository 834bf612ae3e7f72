package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "harvest_batches_total",
	Help: "counter of submitted entry batches",
})

var tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_tasks_total",
	Help: "counter of completed entry tasks by outcome",
}, []string{"status"})
