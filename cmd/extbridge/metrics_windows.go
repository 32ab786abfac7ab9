//go:build windows

package main

import (
	"github.com/hashicorp/go-metrics"
)

// setupMetricsDump is a no-op; there is no dump signal on Windows.
func setupMetricsDump(sink *metrics.InmemSink) {
}
