//go:build !windows

package main

import (
	"github.com/hashicorp/go-metrics"
)

// setupMetricsDump makes SIGUSR1 dump the in-memory metrics to stderr.
func setupMetricsDump(sink *metrics.InmemSink) {
	metrics.DefaultInmemSignal(sink)
}
