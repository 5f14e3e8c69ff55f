/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package policy implements the policy lifecycle: creation (extract the
// reference embedding, seal both payloads, upload, register on the ledger,
// index the metadata), the informational pre-check and owner revocation.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/trustbloc/shield/internal/logfields"
	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/embedding"
	"github.com/trustbloc/shield/pkg/ledger"
)

var logger = log.New("policy-service")

const (
	defaultMaxIDRetries = 3
	uploadRoutines      = 2
)

var errRetriesExhausted = errors.New("policy ID retries exhausted")

type ledgerClient interface {
	CreatePolicy(ctx context.Context, id string, expiry time.Time, maxAttempts uint64) error
	IsPolicyValid(ctx context.Context, id string) (bool, error)
	GetPolicy(ctx context.Context, id string) (*ledger.PolicyRecord, error)
	Revoke(ctx context.Context, id string) error
}

type visionClient interface {
	ExtractEmbedding(ctx context.Context, image []byte, contentType string) ([]float64, error)
}

type contentStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

type bundleStore interface {
	Put(ctx context.Context, bundle *EncryptedBundle) error
	Get(ctx context.Context, policyID string) (*EncryptedBundle, error)
	SetValid(ctx context.Context, policyID string, valid bool) error
}

type dataProtector interface {
	Seal(data, key []byte) ([]byte, error)
	Compression() dataprotect.Compression
}

type keyGenerator interface {
	NewKey() ([]byte, error)
}

type statusCache interface {
	Get(ctx context.Context, policyID string) (*ledger.PolicyRecord, error)
	Put(ctx context.Context, record *ledger.PolicyRecord) error
	Invalidate(ctx context.Context, policyID string) error
}

// Config configures Service.
type Config struct {
	LedgerClient  ledgerClient
	VisionClient  visionClient
	ContentStore  contentStore
	BundleStore   bundleStore
	DataProtector dataProtector
	KeyGenerator  keyGenerator
	StatusCache   statusCache // optional
	MaxIDRetries  int
}

// Service implements policy lifecycle operations.
type Service struct {
	ledgerClient  ledgerClient
	visionClient  visionClient
	contentStore  contentStore
	bundleStore   bundleStore
	dataProtector dataProtector
	keyGenerator  keyGenerator
	statusCache   statusCache
	maxIDRetries  int
}

// New creates Service.
func New(config *Config) *Service {
	maxIDRetries := config.MaxIDRetries
	if maxIDRetries <= 0 {
		maxIDRetries = defaultMaxIDRetries
	}

	return &Service{
		ledgerClient:  config.LedgerClient,
		visionClient:  config.VisionClient,
		contentStore:  config.ContentStore,
		bundleStore:   config.BundleStore,
		dataProtector: config.DataProtector,
		keyGenerator:  config.KeyGenerator,
		statusCache:   config.StatusCache,
		maxIDRetries:  maxIDRetries,
	}
}

// CreatePolicy runs the creation pipeline. The ledger registration happens
// before the metadata write so the index never references a policy the
// ledger does not know about.
func (s *Service) CreatePolicy(ctx context.Context, req *CreatePolicyRequest) (*CreatedPolicy, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	referenceEmbedding, err := s.visionClient.ExtractEmbedding(ctx, req.ReferenceImage, req.ReferenceImageType)
	if err != nil {
		return nil, fmt.Errorf("extract reference embedding: %w", err)
	}

	embeddingBytes, err := embedding.Marshal(referenceEmbedding)
	if err != nil {
		return nil, fmt.Errorf("marshal reference embedding: %w", err)
	}

	key, err := s.keyGenerator.NewKey()
	if err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}

	resourceCID, embeddingCID, err := s.sealAndUpload(ctx, req.Resource, embeddingBytes, key)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().Add(time.Duration(req.ExpirySeconds) * time.Second).Truncate(time.Second)

	policyID, err := s.registerPolicy(ctx, expiry, req.MaxAttempts)
	if err != nil {
		return nil, err
	}

	bundle := &EncryptedBundle{
		PolicyID:              policyID,
		ResourceCID:           resourceCID,
		ReferenceEmbeddingCID: embeddingCID,
		SecretKey:             key,
		MimeType:              req.MimeType,
		IsText:                req.IsText,
		Compression:           s.dataProtector.Compression(),
		Valid:                 true,
		CreatedAt:             time.Now(),
	}

	if err = s.bundleStore.Put(ctx, bundle); err != nil {
		// The policy is live on the ledger but unservable without metadata.
		// Surface the failure; the slot expires with the policy.
		logger.Errorc(ctx, "policy registered but metadata write failed",
			logfields.WithPolicyID(policyID), log.WithError(err))

		return nil, fmt.Errorf("store bundle metadata: %w", err)
	}

	logger.Infoc(ctx, "policy created",
		logfields.WithPolicyID(policyID),
		logfields.WithCID(resourceCID),
		logfields.WithExpiry(expiry),
		logfields.WithMaxAttempts(req.MaxAttempts))

	return &CreatedPolicy{
		PolicyID:              policyID,
		ResourceCID:           resourceCID,
		ReferenceEmbeddingCID: embeddingCID,
		Expiry:                expiry,
		MaxAttempts:           req.MaxAttempts,
	}, nil
}

// GetPolicyInfo answers the informational pre-check, served from the status
// cache when possible.
func (s *Service) GetPolicyInfo(ctx context.Context, policyID string) (*Info, error) {
	policyID, err := ledger.NormalizeID(policyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	bundle, err := s.bundleStore.Get(ctx, policyID)
	if err != nil {
		return nil, err
	}

	record, err := s.policyRecord(ctx, policyID)
	if err != nil {
		return nil, err
	}

	return &Info{
		PolicyID:              policyID,
		ReferenceEmbeddingCID: bundle.ReferenceEmbeddingCID,
		Valid:                 bundle.Valid && record.Usable(time.Now()),
		Expiry:                record.Expiry,
		MaxAttempts:           record.MaxAttempts,
		Attempts:              record.Attempts,
		RemainingAttempts:     record.RemainingAttempts(),
	}, nil
}

// RevokePolicy permanently invalidates the policy: the ledger flag first,
// then the metadata flag, then the cache entry.
func (s *Service) RevokePolicy(ctx context.Context, policyID string) error {
	policyID, err := ledger.NormalizeID(policyID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	if err := s.ledgerClient.Revoke(ctx, policyID); err != nil {
		return fmt.Errorf("revoke on ledger: %w", err)
	}

	if err := s.bundleStore.SetValid(ctx, policyID, false); err != nil {
		return fmt.Errorf("invalidate bundle metadata: %w", err)
	}

	if s.statusCache != nil {
		if err := s.statusCache.Invalidate(ctx, policyID); err != nil {
			logger.Warnc(ctx, "failed to invalidate policy status cache",
				logfields.WithPolicyID(policyID), log.WithError(err))
		}
	}

	logger.Infoc(ctx, "policy revoked", logfields.WithPolicyID(policyID))

	return nil
}

// sealAndUpload encrypts both payloads and uploads the ciphertexts in
// parallel.
func (s *Service) sealAndUpload(
	ctx context.Context, resource, embeddingBytes, key []byte) (string, string, error) {
	var (
		resourceCID, embeddingCID string
		resourceErr, embeddingErr error
	)

	pool := workerpool.New(uploadRoutines)

	pool.Submit(func() {
		sealed, err := s.dataProtector.Seal(resource, key)
		if err != nil {
			resourceErr = fmt.Errorf("seal resource: %w", err)
			return
		}

		resourceCID, err = s.contentStore.Put(ctx, sealed)
		if err != nil {
			resourceErr = fmt.Errorf("upload resource: %w", err)
		}
	})

	pool.Submit(func() {
		sealed, err := s.dataProtector.Seal(embeddingBytes, key)
		if err != nil {
			embeddingErr = fmt.Errorf("seal reference embedding: %w", err)
			return
		}

		embeddingCID, err = s.contentStore.Put(ctx, sealed)
		if err != nil {
			embeddingErr = fmt.Errorf("upload reference embedding: %w", err)
		}
	})

	pool.StopWait()

	if resourceErr != nil {
		return "", "", resourceErr
	}

	if embeddingErr != nil {
		return "", "", embeddingErr
	}

	return resourceCID, embeddingCID, nil
}

// registerPolicy rolls a fresh ID and registers it, re-rolling on the
// (astronomically unlikely) collision.
func (s *Service) registerPolicy(ctx context.Context, expiry time.Time, maxAttempts uint64) (string, error) {
	for i := 0; i < s.maxIDRetries; i++ {
		policyID, err := ledger.NewPolicyID()
		if err != nil {
			return "", fmt.Errorf("generate policy ID: %w", err)
		}

		err = s.ledgerClient.CreatePolicy(ctx, policyID, expiry, maxAttempts)
		if err == nil {
			return policyID, nil
		}

		if errors.Is(err, ledger.ErrPolicyExists) {
			logger.Warnc(ctx, "policy ID collision, re-rolling", logfields.WithPolicyID(policyID))

			continue
		}

		return "", fmt.Errorf("register policy: %w", err)
	}

	return "", errRetriesExhausted
}

func (s *Service) policyRecord(ctx context.Context, policyID string) (*ledger.PolicyRecord, error) {
	if s.statusCache != nil {
		record, err := s.statusCache.Get(ctx, policyID)
		if err == nil {
			return record, nil
		}
	}

	record, err := s.ledgerClient.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}

	if s.statusCache != nil {
		if err = s.statusCache.Put(ctx, record); err != nil {
			logger.Warnc(ctx, "failed to cache policy status",
				logfields.WithPolicyID(policyID), log.WithError(err))
		}
	}

	return record, nil
}

func validateCreateRequest(req *CreatePolicyRequest) error {
	switch {
	case len(req.Resource) == 0:
		return fmt.Errorf("%w: resource is required", ErrInvalidRequest)
	case len(req.ReferenceImage) == 0:
		return fmt.Errorf("%w: reference image is required", ErrInvalidRequest)
	case req.ExpirySeconds < 0:
		return fmt.Errorf("%w: expiry must not be negative", ErrInvalidRequest)
	case req.MaxAttempts == 0:
		return fmt.Errorf("%w: maxAttempts must be at least 1", ErrInvalidRequest)
	}

	return nil
}
