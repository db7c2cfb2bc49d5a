// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-pgpkit.
//
// go-pgpkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics exposes Prometheus instrumentation for go-pgpkit
// operations: counts and latencies per operation and algorithm, error
// counts by kind, packet counts, and the random pool's entropy estimate.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-pgpkit/pkg/pgperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all pgpkit metrics
	Namespace = "pgpkit"

	// Label names
	LabelOperation  = "operation"
	LabelAlgorithm  = "algorithm"
	LabelStatus     = "status"
	LabelErrorKind  = "error_kind"
	LabelPacketType = "packet_type"
	LabelDirection  = "direction"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Packet directions
	DirectionRead  = "read"
	DirectionWrite = "write"

	// Operation names
	OpKeyGen       = "keygen"
	OpSign         = "sign"
	OpVerify       = "verify"
	OpEncrypt      = "encrypt"
	OpDecrypt      = "decrypt"
	OpLock         = "lock"
	OpUnlock       = "unlock"
	OpCertify      = "certify"
	OpRevoke       = "revoke"
	OpParseKeyring = "parse_keyring"
	OpAONTDigest   = "aont_digest"
	OpAONTUndigest = "aont_undigest"
	OpPoolStir     = "pool_stir"
)

var (
	// OperationsTotal counts operations by name, algorithm and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of pgpkit operations by type, algorithm, and status",
		},
		[]string{LabelOperation, LabelAlgorithm, LabelStatus},
	)

	// OperationDuration tracks operation latency in seconds. Key generation
	// dominates the upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pgpkit operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30, 120},
		},
		[]string{LabelOperation, LabelAlgorithm},
	)

	// ErrorsTotal counts failures by operation and error kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error kind",
		},
		[]string{LabelOperation, LabelErrorKind},
	)

	// PacketsTotal counts framed packets read and written by type.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "packets_total",
			Help:      "Total number of packets read or written by type",
		},
		[]string{LabelPacketType, LabelDirection},
	)

	// PoolEntropyBits is the entropy estimate of the most recently used pool.
	PoolEntropyBits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pool_entropy_bits",
			Help:      "Entropy estimate of the random pool in bits",
		},
	)

	// KeyringKeys is the number of keys in the most recently loaded keyring.
	KeyringKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "keyring_keys",
			Help:      "Number of keys in the loaded keyring",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records one operation with its duration in seconds.
func RecordOperation(operation, algorithm, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, algorithm, status).Inc()
	OperationDuration.WithLabelValues(operation, algorithm).Observe(duration)
}

// RecordError records a failure of operation, classified by kind.
func RecordError(operation string, kind pgperr.Kind) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, kind.String()).Inc()
}

// Observe records an operation that started at start and ended with err.
// It is meant to be deferred:
//
//	defer func(t time.Time) { metrics.Observe(metrics.OpSign, "RSA", t, err) }(time.Now())
func Observe(operation, algorithm string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(operation, pgperr.KindOf(err))
	}
	RecordOperation(operation, algorithm, status, time.Since(start).Seconds())
}

// RecordPacket counts one framed packet.
func RecordPacket(packetType, direction string) {
	if !enabled.Load() {
		return
	}
	PacketsTotal.WithLabelValues(packetType, direction).Inc()
}

// SetPoolEntropy publishes a pool's entropy estimate.
func SetPoolEntropy(bits int) {
	if !enabled.Load() {
		return
	}
	PoolEntropyBits.Set(float64(bits))
}

// SetKeyringKeys publishes the size of a keyring.
func SetKeyringKeys(n int) {
	if !enabled.Load() {
		return
	}
	KeyringKeys.Set(float64(n))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
