// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa-webauthn.
//
// go-mfa-webauthn is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for WebAuthn
// ceremony outcomes and the HTTP surface that hosts them.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "webauthn"

	// Label names
	LabelCeremony   = "ceremony"
	LabelResult     = "result"
	LabelFailure    = "failure"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Result values
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// CeremoniesTotal tracks finished ceremonies by type and result.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of finished ceremonies by type and result",
		},
		[]string{LabelCeremony, LabelResult},
	)

	// CeremonyDuration tracks finish-operation latency in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony finish operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony},
	)

	// FailuresTotal tracks ceremony failures by type and failure kind.
	// Failure kinds follow the verification error taxonomy, e.g.
	// "challenge_mismatch", "signature_invalid", "replay_detected".
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failures_total",
			Help:      "Total number of ceremony failures by type and failure kind",
		},
		[]string{LabelCeremony, LabelFailure},
	)

	// ReplayDetectionsTotal counts signature counter rollbacks. A
	// nonzero value means a credential was likely cloned.
	ReplayDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replay_detections_total",
			Help:      "Total number of signature counter replay detections",
		},
	)

	// CredentialsTotal tracks the number of stored credential sources.
	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_total",
			Help:      "Number of stored credential sources",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks currently allocated heap bytes.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "memory_alloc_bytes",
			Help:      "Currently allocated heap bytes",
		},
	)

	// MemorySysBytes tracks bytes obtained from the OS.
	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runtime",
			Name:      "memory_sys_bytes",
			Help:      "Bytes of memory obtained from the OS",
		},
	)

	// ServerUptime tracks seconds since the server started.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Seconds since the server started",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a finished ceremony with its duration.
//
// Parameters:
//   - ceremony: CeremonyRegistration or CeremonyAuthentication
//   - result: ResultSuccess or ResultFailure
//   - duration: The finish operation duration in seconds
func RecordCeremony(ceremony, result string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, result).Inc()
	CeremonyDuration.WithLabelValues(ceremony).Observe(duration)
}

// RecordFailure records a ceremony failure with its taxonomy kind,
// e.g. "challenge_mismatch" or "signature_invalid".
func RecordFailure(ceremony, failure string) {
	if !enabled.Load() {
		return
	}
	FailuresTotal.WithLabelValues(ceremony, failure).Inc()
}

// RecordReplayDetection records a signature counter rollback.
func RecordReplayDetection() {
	if !enabled.Load() {
		return
	}
	ReplayDetectionsTotal.Inc()
}

// SetCredentialsTotal sets the stored credential gauge.
func SetCredentialsTotal(count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsTotal.Set(count)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
