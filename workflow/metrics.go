package workflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/scholarlab/harvest/thumbnail"
)

var entriesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_entries_processed_total",
	Help: "counter of workflow traversals by outcome",
}, []string{"outcome"})

// generateThumbnails is an indirection over the external rasterizer, swapped
// out by tests which have no ImageMagick.
var generateThumbnails = func(ctx context.Context, pdfFile string) {
	thumbnail.Generate(ctx, pdfFile)
}
