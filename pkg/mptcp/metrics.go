package mptcp

import (
	"io"
	"strconv"

	"github.com/VictoriaMetrics/metrics"

	"github.com/r2northstar/mptcpd/pkg/metricsx"
)

// engineMetrics groups the Prometheus-format counters an Engine exposes,
// registered on a private *metrics.Set the same way the teacher's HTTP
// handlers keep their own metric sets rather than touching the process
// default registry.
type engineMetrics struct {
	set *metrics.Set

	tokensRegistered   *metrics.Counter
	pendingJoins       *metrics.Counter
	subflowsAttached   *metrics.Counter
	activeConnections  *metrics.Counter
	bytesSent          *metrics.Counter
	bytesReceived      *metrics.Counter
	reinjected         *metrics.Counter
	fallbacks          *metrics.Counter
	optionDecodeErrors *metrics.Counter
	mappingViolations  *metrics.Counter
	checksumMismatches *metrics.Counter
}

func newEngineMetrics() *engineMetrics {
	m := &engineMetrics{set: metrics.NewSet()}
	m.tokensRegistered = m.set.NewCounter(`mptcp_tokens_registered_total`)
	m.pendingJoins = m.set.NewCounter(`mptcp_pending_joins_total`)
	m.subflowsAttached = m.set.NewCounter(`mptcp_subflows_attached`)
	m.activeConnections = m.set.NewCounter(`mptcp_active_connections`)
	m.bytesSent = m.set.NewCounter(`mptcp_bytes_sent_total`)
	m.bytesReceived = m.set.NewCounter(`mptcp_bytes_received_total`)
	m.reinjected = m.set.NewCounter(`mptcp_reinjected_segments_total`)
	m.fallbacks = m.set.NewCounter(`mptcp_fallbacks_total`)
	m.optionDecodeErrors = m.set.NewCounter(`mptcp_option_decode_errors_total`)
	m.mappingViolations = m.set.NewCounter(`mptcp_mapping_violations_total`)
	m.checksumMismatches = m.set.NewCounter(`mptcp_checksum_mismatches_total`)
	return m
}

// WritePrometheus writes every registered metric in Prometheus exposition
// format, for the debug/metrics HTTP endpoint.
func (m *engineMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// reinjectedForPath returns the per-path reinjection counter, creating it on
// first use. Path-qualified names are built with metricsx.Name the same way
// the teacher labels its per-region/per-game metrics.
func (m *engineMetrics) reinjectedForPath(pathIndex int) *metrics.Counter {
	return m.set.GetOrCreateCounter(metricsx.Name("mptcp_reinjected_segments_total", "path_index", strconv.Itoa(pathIndex)))
}
