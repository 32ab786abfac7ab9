package bridge

import (
	"github.com/hashicorp/go-metrics"
)

var (
	// MetricConnsAccepted counts accepted peer connections.
	MetricConnsAccepted = []string{"extbridge", "connections", "accepted", "count"}
	// MetricConnsActive gauges currently registered connections.
	MetricConnsActive     = []string{"extbridge", "connections", "active"}
	MetricConnsActivated  = []string{"extbridge", "connections", "activated", "count"}
	MetricConnsRejected   = []string{"extbridge", "connections", "rejected", "count"}
	MetricFramesInCount   = []string{"extbridge", "frames", "in", "count"}
	MetricFramesOutCount  = []string{"extbridge", "frames", "out", "count"}
	MetricBytesIn         = []string{"extbridge", "bytes", "in"}
	MetricBytesOut        = []string{"extbridge", "bytes", "out"}
	MetricViolationsCount = []string{"extbridge", "protocol", "violations", "count"}
	MetricBroadcastsCount = []string{"extbridge", "broadcasts", "out", "count"}
	MetricResultsDropped  = []string{"extbridge", "results", "dropped", "count"}
)

type TelemetryLabel string

var (
	LabelPeerApp TelemetryLabel = "peer_app"
	LabelReason  TelemetryLabel = "reason"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}
