/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trustbloc/shield/internal/logfields"
	"github.com/trustbloc/shield/pkg/observability/metrics"
)

var logger = metrics.Logger

var (
	createOnce sync.Once       //nolint:gochecknoglobals
	instance   metrics.Metrics //nolint:gochecknoglobals
)

type promProvider struct {
	httpServer *http.Server
}

// NewPrometheusProvider creates new instance of Prometheus Metrics Provider.
func NewPrometheusProvider(httpServer *http.Server) metrics.Provider {
	return &promProvider{httpServer: httpServer}
}

// Create creates/initializes the prometheus metrics provider.
func (pp *promProvider) Create() error {
	if pp.httpServer == nil {
		return nil
	}

	if err := pp.httpServer.ListenAndServe(); err != nil {
		return fmt.Errorf("start metrics HTTP server: %w", err)
	}

	return nil
}

// Metrics returns supported metrics.
func (pp *promProvider) Metrics() metrics.Metrics {
	return GetMetrics()
}

// Destroy destroys the prometheus metrics provider.
func (pp *promProvider) Destroy() error {
	if pp.httpServer != nil {
		return pp.httpServer.Shutdown(context.Background())
	}

	return nil
}

// GetMetrics returns metrics implementation.
func GetMetrics() metrics.Metrics {
	createOnce.Do(func() {
		instance = NewMetrics()
	})

	return instance
}

// PromMetrics manages the metrics for the service.
type PromMetrics struct {
	createPolicyTime     prometheus.Histogram
	verifyTime           prometheus.Histogram
	ledgerLogAttemptTime prometheus.Histogram
	verificationOutcome  *prometheus.CounterVec
}

// NewMetrics creates instance of prometheus metrics.
func NewMetrics() metrics.Metrics {
	pm := &PromMetrics{
		createPolicyTime:     newCreatePolicyTime(),
		verifyTime:           newVerifyTime(),
		ledgerLogAttemptTime: newLedgerLogAttemptTime(),
		verificationOutcome:  newVerificationOutcome(),
	}

	registerMetrics(pm)

	return pm
}

// CreatePolicyTime records the time for the policy creation pipeline.
func (pm *PromMetrics) CreatePolicyTime(value time.Duration) {
	pm.createPolicyTime.Observe(value.Seconds())

	logger.Debug("createPolicy time", logfields.WithDuration(value))
}

// VerifyTime records the time for one verification attempt.
func (pm *PromMetrics) VerifyTime(value time.Duration) {
	pm.verifyTime.Observe(value.Seconds())

	logger.Debug("verify time", logfields.WithDuration(value))
}

// LedgerLogAttemptTime records the time for the ledger logAttempt commit.
func (pm *PromMetrics) LedgerLogAttemptTime(value time.Duration) {
	pm.ledgerLogAttemptTime.Observe(value.Seconds())

	logger.Debug("ledger logAttempt time", logfields.WithDuration(value))
}

// VerificationOutcome counts terminal attempt outcomes.
func (pm *PromMetrics) VerificationOutcome(outcome string) {
	pm.verificationOutcome.WithLabelValues(outcome).Inc()
}

func registerMetrics(pm *PromMetrics) {
	prometheus.MustRegister(
		pm.createPolicyTime, pm.verifyTime, pm.ledgerLogAttemptTime, pm.verificationOutcome,
	)
}

func newHistogram(subsystem, name, help string, labels prometheus.Labels) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   metrics.Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	})
}

func newCreatePolicyTime() prometheus.Histogram {
	return newHistogram(
		metrics.Service, metrics.CreatePolicyTimeMetric,
		"The time (in seconds) it takes to run the policy creation pipeline.",
		nil,
	)
}

func newVerifyTime() prometheus.Histogram {
	return newHistogram(
		metrics.Service, metrics.VerifyTimeMetric,
		"The time (in seconds) it takes to run one verification attempt.",
		nil,
	)
}

func newLedgerLogAttemptTime() prometheus.Histogram {
	return newHistogram(
		metrics.Service, metrics.LedgerLogAttemptTimeMetric,
		"The time (in seconds) it takes to commit the ledger logAttempt transaction.",
		nil,
	)
}

func newVerificationOutcome() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: metrics.Service,
		Name:      metrics.VerificationOutcomeMetric,
		Help:      "The number of verification attempts per terminal outcome.",
	}, []string{"outcome"})
}
