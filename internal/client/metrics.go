package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelOpcode = "opcode"
	labelResult = "result"
	labelReason = "reason"
)

var (
	metricMappingsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcpclient_mappings_active",
			Help: "Current number of non-terminal mapping records.",
		},
	)

	metricRequestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcpclient_requests_sent_total",
			Help: "PCP requests sent, including retransmissions.",
		},
		[]string{labelOpcode},
	)

	metricResponsesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcpclient_responses_received_total",
			Help: "PCP responses received by opcode and result code.",
		},
		[]string{labelOpcode, labelResult},
	)

	metricResponsesUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcpclient_responses_unmatched_total",
			Help: "Responses that matched no active mapping record.",
		},
	)

	metricDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcpclient_decode_errors_total",
			Help: "Packets dropped for failing to decode, by listener.",
		},
		[]string{"listener"},
	)

	metricEpochInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcpclient_epoch_invalid_total",
			Help: "Epoch validation failures that triggered recovery.",
		},
	)

	metricRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pcpclient_recoveries_total",
			Help: "Recovery procedures run after an epoch discontinuity or Announce.",
		},
	)

	metricMappingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcpclient_mapping_transitions_total",
			Help: "Mapping state transitions by resulting state and reason.",
		},
		[]string{"state", labelReason},
	)

	metricRenewalWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "pcpclient_renewal_wait_seconds",
			Help: "Computed renewal delay before each scheduled renewal.",
		},
	)
)

func emitRequestSent(op string) {
	metricRequestsSent.WithLabelValues(op).Inc()
}

func emitResponseReceived(op, result string) {
	metricResponsesReceived.WithLabelValues(op, result).Inc()
}

func emitMappingTransition(state, reason string) {
	metricMappingTransitions.WithLabelValues(state, reason).Inc()
}

func emitRenewalWait(d time.Duration) {
	metricRenewalWaitSeconds.Observe(d.Seconds())
}
