/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verification implements the attempt pipeline: check the policy,
// compare embeddings locally, log the attempt on the ledger, and release the
// plaintext only after the ledger has acknowledged a successful log. The
// ledger's logAttempt is the sole admission authority; everything before it
// is advisory.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/trustbloc/shield/internal/logfields"
	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/embedding"
	"github.com/trustbloc/shield/pkg/ledger"
	"github.com/trustbloc/shield/pkg/locker"
	"github.com/trustbloc/shield/pkg/observability/metrics/noop"
	"github.com/trustbloc/shield/pkg/service/policy"
)

var logger = log.New("verification-service")

type ledgerClient interface {
	GetPolicy(ctx context.Context, id string) (*ledger.PolicyRecord, error)
	LogAttempt(ctx context.Context, id string, success bool) (*ledger.AttemptResult, error)
}

type bundleStore interface {
	Get(ctx context.Context, policyID string) (*policy.EncryptedBundle, error)
}

type contentStore interface {
	Get(ctx context.Context, cid string) ([]byte, error)
}

type dataProtector interface {
	Open(data, key []byte, compression dataprotect.Compression) ([]byte, error)
}

type comparator interface {
	Compare(reference, captured []float64) (*embedding.ComparisonResult, error)
}

type visionClient interface {
	ExtractEmbedding(ctx context.Context, image []byte, contentType string) ([]float64, error)
}

type statusCache interface {
	Invalidate(ctx context.Context, policyID string) error
}

type metricsProvider interface {
	LedgerLogAttemptTime(value time.Duration)
}

// Config configures Service.
type Config struct {
	LedgerClient  ledgerClient
	BundleStore   bundleStore
	ContentStore  contentStore
	DataProtector dataProtector
	Comparator    comparator
	VisionClient  visionClient
	Locker        locker.Locker
	StatusCache   statusCache // optional
	Metrics       metricsProvider
}

// Service orchestrates verification attempts.
type Service struct {
	ledgerClient  ledgerClient
	bundleStore   bundleStore
	contentStore  contentStore
	dataProtector dataProtector
	comparator    comparator
	visionClient  visionClient
	locker        locker.Locker
	statusCache   statusCache
	metrics       metricsProvider
}

// New creates Service.
func New(config *Config) *Service {
	metrics := config.Metrics
	if metrics == nil {
		metrics = noop.GetMetrics()
	}

	return &Service{
		ledgerClient:  config.LedgerClient,
		bundleStore:   config.BundleStore,
		contentStore:  config.ContentStore,
		dataProtector: config.DataProtector,
		comparator:    config.Comparator,
		visionClient:  config.VisionClient,
		locker:        config.Locker,
		statusCache:   config.StatusCache,
		metrics:       metrics,
	}
}

// Verify runs one attempt end to end. Attempts for the same policy are
// serialized through the locker; correctness never depends on it, since the
// ledger re-validates atomically at log time.
func (s *Service) Verify(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()

	attemptID := uuid.NewString()

	policyID, err := ledger.NormalizeID(req.PolicyID)
	if err != nil {
		// A malformed ID cannot exist on the ledger; resolve the attempt
		// without taking the lock or consuming anything.
		logger.Infoc(ctx, "verification attempt rejected, malformed policy ID",
			logfields.WithAttemptID(attemptID), log.WithError(err))

		return &Result{
			PolicyID:  req.PolicyID,
			AttemptID: attemptID,
			Outcome:   OutcomeInvalid,
			Reason:    ReasonNotFound,
			Message:   invalidMessage(ReasonNotFound),
		}, nil
	}

	result := &Result{
		PolicyID:  policyID,
		AttemptID: attemptID,
	}

	mutex := s.locker.NewMutex(policyID)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire policy lock: %w", err)
	}

	defer func() {
		if _, err := mutex.Unlock(); err != nil {
			logger.Warnc(ctx, "failed to release policy lock",
				logfields.WithPolicyID(policyID), log.WithError(err))
		}
	}()

	s.run(ctx, req, result)

	logger.Infoc(ctx, "verification attempt finished",
		logfields.WithPolicyID(policyID),
		logfields.WithAttemptID(attemptID),
		logfields.WithOutcome(string(result.Outcome)),
		logfields.WithSimilarity(result.Similarity),
		logfields.WithRemainingAttempts(result.RemainingAttempts),
		logfields.WithDuration(time.Since(started)))

	return result, nil
}

func (s *Service) run(ctx context.Context, req *Request, result *Result) {
	policyID := result.PolicyID

	// Checking.
	s.transition(ctx, result, StateIdle, StateChecking)

	bundle, record, reason := s.checkPolicy(ctx, policyID)
	if reason != "" {
		result.Outcome = OutcomeInvalid
		result.Reason = reason
		result.Message = invalidMessage(reason)

		return
	}

	captured, err := s.capturedEmbedding(ctx, req)
	if err != nil {
		result.Outcome = OutcomeError
		result.Message = err.Error()

		return
	}

	// Comparing. The reference embedding is opened with the bundle key; the
	// resource ciphertext stays untouched until a successful log.
	s.transition(ctx, result, StateChecking, StateComparing)

	comparison, err := s.compare(ctx, bundle, captured)
	if err != nil {
		result.Outcome = OutcomeError
		result.Message = err.Error()

		return
	}

	result.Similarity = comparison.Similarity

	// Logging. The call runs on a detached context: once issued, the attempt
	// is being counted and cancellation must not orphan it.
	s.transition(ctx, result, StateComparing, StateLogging)

	logStarted := time.Now()

	attempt, err := s.ledgerClient.LogAttempt(detach(ctx), policyID, comparison.Match)

	s.metrics.LedgerLogAttemptTime(time.Since(logStarted))

	s.invalidateCache(ctx, policyID)

	if err != nil {
		s.resolveLogFailure(ctx, err, result)

		return
	}

	result.AttemptLogged = true
	result.TxHash = attempt.TxHash
	result.RemainingAttempts = remaining(record.MaxAttempts, attempt.Attempts)

	if !comparison.Match {
		result.Outcome = OutcomeFailed
		result.Message = "biometric mismatch"

		return
	}

	// Releasing. The ledger has acknowledged a successful attempt; a failure
	// from here on is a data-integrity fault, never a verification failure.
	s.transition(ctx, result, StateLogging, StateReleasing)

	s.release(ctx, bundle, result)
}

// checkPolicy loads the bundle and the ledger record and evaluates the
// advisory usability predicate. An empty reason means the attempt proceeds.
func (s *Service) checkPolicy(
	ctx context.Context, policyID string) (*policy.EncryptedBundle, *ledger.PolicyRecord, InvalidReason) {
	bundle, err := s.bundleStore.Get(ctx, policyID)
	if err != nil {
		if errors.Is(err, policy.ErrDataNotFound) {
			return nil, nil, ReasonNotFound
		}

		logger.Errorc(ctx, "failed to load bundle metadata",
			logfields.WithPolicyID(policyID), log.WithError(err))

		return nil, nil, ReasonUnavailable
	}

	record, err := s.ledgerClient.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, ledger.ErrPolicyNotFound) {
			return nil, nil, ReasonNotFound
		}

		logger.Errorc(ctx, "failed to read policy record",
			logfields.WithPolicyID(policyID), log.WithError(err))

		return nil, nil, ReasonUnavailable
	}

	switch {
	case !bundle.Valid, !record.Valid:
		return nil, nil, ReasonRevoked
	case !time.Now().Before(record.Expiry):
		return nil, nil, ReasonExpired
	case record.Attempts >= record.MaxAttempts:
		return nil, nil, ReasonAttemptsExhausted
	}

	return bundle, record, ""
}

func (s *Service) capturedEmbedding(ctx context.Context, req *Request) ([]float64, error) {
	if len(req.CapturedEmbedding) > 0 {
		return req.CapturedEmbedding, nil
	}

	if len(req.CapturedImage) == 0 {
		return nil, errors.New("captured embedding or image is required")
	}

	captured, err := s.visionClient.ExtractEmbedding(ctx, req.CapturedImage, req.CapturedImageType)
	if err != nil {
		return nil, fmt.Errorf("extract captured embedding: %w", err)
	}

	return captured, nil
}

func (s *Service) compare(
	ctx context.Context, bundle *policy.EncryptedBundle, captured []float64) (*embedding.ComparisonResult, error) {
	sealed, err := s.contentStore.Get(ctx, bundle.ReferenceEmbeddingCID)
	if err != nil {
		return nil, fmt.Errorf("fetch reference embedding: %w", err)
	}

	embeddingBytes, err := s.dataProtector.Open(sealed, bundle.SecretKey, bundle.Compression)
	if err != nil {
		return nil, fmt.Errorf("open reference embedding: %w", err)
	}

	reference, err := embedding.Unmarshal(embeddingBytes)
	if err != nil {
		return nil, fmt.Errorf("decode reference embedding: %w", err)
	}

	comparison, err := s.comparator.Compare(reference, captured)
	if err != nil {
		return nil, fmt.Errorf("compare embeddings: %w", err)
	}

	logger.Debugc(ctx, "embeddings compared",
		logfields.WithPolicyID(bundle.PolicyID),
		logfields.WithSimilarity(comparison.Similarity),
		logfields.WithMatchDecision(comparison.Match))

	return comparison, nil
}

// resolveLogFailure classifies a LogAttempt error. A ledger revert means the
// policy lost its last slot to a concurrent attempt or went unusable between
// Checking and Logging; anything else leaves the attempt state unknown.
func (s *Service) resolveLogFailure(ctx context.Context, err error, result *Result) {
	switch {
	case errors.Is(err, ledger.ErrPolicyNotFound):
		result.Outcome = OutcomeInvalid
		result.Reason = ReasonNotFound
	case errors.Is(err, ledger.ErrPolicyExpired):
		result.Outcome = OutcomeInvalid
		result.Reason = ReasonExpired
	case errors.Is(err, ledger.ErrPolicyRevoked):
		result.Outcome = OutcomeInvalid
		result.Reason = ReasonRevoked
	case errors.Is(err, ledger.ErrAttemptsExhausted):
		result.Outcome = OutcomeInvalid
		result.Reason = ReasonAttemptsExhausted
	default:
		result.Outcome = OutcomeError
		result.Message = fmt.Sprintf("ledger write failed: %s", err)

		logger.Errorc(ctx, "attempt log failed",
			logfields.WithPolicyID(result.PolicyID),
			logfields.WithAttemptID(result.AttemptID),
			log.WithError(err))

		return
	}

	result.Message = invalidMessage(result.Reason)

	logger.Infoc(ctx, "attempt rejected by ledger",
		logfields.WithPolicyID(result.PolicyID),
		logfields.WithAttemptID(result.AttemptID),
		logfields.WithLedgerReason(string(result.Reason)))
}

func (s *Service) release(ctx context.Context, bundle *policy.EncryptedBundle, result *Result) {
	sealed, err := s.contentStore.Get(ctx, bundle.ResourceCID)
	if err != nil {
		result.Outcome = OutcomeError
		result.Message = fmt.Sprintf("attempt logged but resource fetch failed: %s", err)

		logger.Errorc(ctx, "resource fetch failed after successful log",
			logfields.WithPolicyID(bundle.PolicyID), logfields.WithCID(bundle.ResourceCID), log.WithError(err))

		return
	}

	plaintext, err := s.dataProtector.Open(sealed, bundle.SecretKey, bundle.Compression)
	if err != nil {
		// Data-integrity fault: the ledger already recorded success, so this
		// must surface distinctly from a biometric mismatch.
		result.Outcome = OutcomeError
		result.Message = fmt.Sprintf("attempt logged but resource decryption failed: %s", err)

		logger.Errorc(ctx, "resource decryption failed after successful log",
			logfields.WithPolicyID(bundle.PolicyID), log.WithError(err))

		return
	}

	result.Outcome = OutcomeSuccess
	result.Message = "verified"
	result.Resource = plaintext
	result.MimeType = bundle.MimeType
	result.IsText = bundle.IsText
}

func (s *Service) invalidateCache(ctx context.Context, policyID string) {
	if s.statusCache == nil {
		return
	}

	if err := s.statusCache.Invalidate(ctx, policyID); err != nil {
		logger.Warnc(ctx, "failed to invalidate policy status cache",
			logfields.WithPolicyID(policyID), log.WithError(err))
	}
}

func (s *Service) transition(ctx context.Context, result *Result, from, to State) {
	logger.Debugc(ctx, "state transition",
		logfields.WithPolicyID(result.PolicyID),
		logfields.WithAttemptID(result.AttemptID),
		logfields.WithState(fmt.Sprintf("%s->%s", from, to)))
}

func remaining(maxAttempts, attempts uint64) uint64 {
	if attempts >= maxAttempts {
		return 0
	}

	return maxAttempts - attempts
}

func invalidMessage(reason InvalidReason) string {
	switch reason {
	case ReasonNotFound:
		return "policy not found"
	case ReasonExpired:
		return "policy expired"
	case ReasonRevoked:
		return "policy revoked"
	case ReasonAttemptsExhausted:
		return "attempts exhausted"
	case ReasonUnavailable:
		return "policy status unavailable"
	default:
		return string(reason)
	}
}

// detachedContext carries the parent's values but none of its deadline or
// cancellation. Used for the log call: once issued, the attempt is already
// being counted on the ledger.
type detachedContext struct {
	parent context.Context
}

func detach(ctx context.Context) context.Context {
	return detachedContext{parent: ctx}
}

func (d detachedContext) Deadline() (time.Time, bool)       { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}             { return nil }
func (d detachedContext) Err() error                        { return nil }
func (d detachedContext) Value(key interface{}) interface{} { return d.parent.Value(key) }
