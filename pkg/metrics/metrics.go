// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sshtrust.
//
// go-sshtrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for go-sshtrust
// operations. Every collector is registered on Registry rather than the
// global default so a short-lived CLI run can dump exactly its own samples
// to a node-exporter textfile.
package metrics

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"
)

const (
	// Namespace is the Prometheus namespace for all sshtrust metrics
	Namespace = "sshtrust"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelOutcome   = "outcome"
	LabelReason    = "reason"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Trust store skip reasons
	SkipUnreadable  = "unreadable"
	SkipUnparseable = "unparseable"

	// Operation names
	OpIssue  = "issue"
	OpSign   = "sign"
	OpVerify = "verify"
	OpChain  = "chain"
)

var (
	// Registry holds every sshtrust collector.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	// OperationsTotal counts protocol operations by name and status.
	OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of sshtrust operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of protocol operations in seconds.
	OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of sshtrust operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{LabelOperation},
	)

	// VerifyOutcomesTotal counts completed verifications by outcome.
	VerifyOutcomesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verify_outcomes_total",
			Help:      "Total number of verifications by outcome",
		},
		[]string{LabelOutcome},
	)

	// TrustStoreSkippedTotal counts trust store entries skipped because they
	// could not be read or parsed.
	TrustStoreSkippedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "truststore",
			Name:      "skipped_total",
			Help:      "Total number of unreadable or unparseable trust store entries skipped",
		},
		[]string{LabelReason},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its status and duration in seconds.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordVerifyOutcome records the outcome of a completed verification.
func RecordVerifyOutcome(outcome string) {
	if !enabled.Load() {
		return
	}
	VerifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordTrustStoreSkip records one skipped trust store entry.
func RecordTrustStoreSkip(reason string) {
	if !enabled.Load() {
		return
	}
	TrustStoreSkippedTotal.WithLabelValues(reason).Inc()
}

// Status maps an error to a status label value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// WriteTextfile writes the current samples of Registry to path on fsys in
// the text exposition format for the node-exporter textfile collector. The
// file is written beside path and renamed into place.
func WriteTextfile(fsys afero.Fs, path string) error {
	families, err := Registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := afero.TempFile(fsys, filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	defer func() { _ = fsys.Remove(tmp.Name()) }()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("metrics: write textfile: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	if err := fsys.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	if err := fsys.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}

// Reset clears all samples. Used between CLI runs in tests.
func Reset() {
	OperationsTotal.Reset()
	OperationDuration.Reset()
	VerifyOutcomesTotal.Reset()
	TrustStoreSkippedTotal.Reset()
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
