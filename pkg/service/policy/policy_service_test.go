/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package policy_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	mockledger "github.com/trustbloc/shield/internal/mock/ledger"
	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/embedding"
	"github.com/trustbloc/shield/pkg/ledger"
	"github.com/trustbloc/shield/pkg/service/policy"
)

type fakeVision struct {
	embedding []float64
	err       error
}

func (f *fakeVision) ExtractEmbedding(_ context.Context, _ []byte, _ string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.embedding, nil
}

type fakeContentStore struct {
	blobs  map[string][]byte
	putErr error
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{blobs: map[string][]byte{}}
}

func (f *fakeContentStore) Put(_ context.Context, data []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}

	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])
	f.blobs[cid] = data

	return cid, nil
}

type fakeBundleStore struct {
	bundles map[string]*policy.EncryptedBundle
	putErr  error
}

func newFakeBundleStore() *fakeBundleStore {
	return &fakeBundleStore{bundles: map[string]*policy.EncryptedBundle{}}
}

func (f *fakeBundleStore) Put(_ context.Context, bundle *policy.EncryptedBundle) error {
	if f.putErr != nil {
		return f.putErr
	}

	f.bundles[bundle.PolicyID] = bundle

	return nil
}

func (f *fakeBundleStore) Get(_ context.Context, policyID string) (*policy.EncryptedBundle, error) {
	bundle, ok := f.bundles[policyID]
	if !ok {
		return nil, policy.ErrDataNotFound
	}

	return bundle, nil
}

func (f *fakeBundleStore) SetValid(_ context.Context, policyID string, valid bool) error {
	bundle, ok := f.bundles[policyID]
	if !ok {
		return policy.ErrDataNotFound
	}

	bundle.Valid = valid

	return nil
}

type fakeStatusCache struct {
	records     map[string]*ledger.PolicyRecord
	invalidated []string
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{records: map[string]*ledger.PolicyRecord{}}
}

func (f *fakeStatusCache) Get(_ context.Context, policyID string) (*ledger.PolicyRecord, error) {
	record, ok := f.records[policyID]
	if !ok {
		return nil, errors.New("not cached")
	}

	return record, nil
}

func (f *fakeStatusCache) Put(_ context.Context, record *ledger.PolicyRecord) error {
	f.records[record.ID] = record

	return nil
}

func (f *fakeStatusCache) Invalidate(_ context.Context, policyID string) error {
	f.invalidated = append(f.invalidated, policyID)
	delete(f.records, policyID)

	return nil
}

// collidingLedger forces ErrPolicyExists for the first N creates.
type collidingLedger struct {
	*mockledger.InMemory
	collisions int
	creates    int
}

func (c *collidingLedger) CreatePolicy(ctx context.Context, id string, expiry time.Time, maxAttempts uint64) error {
	c.creates++
	if c.creates <= c.collisions {
		return ledger.ErrPolicyExists
	}

	return c.InMemory.CreatePolicy(ctx, id, expiry, maxAttempts)
}

func newProtector(t *testing.T) *dataprotect.DataProtector {
	t.Helper()

	compressor, err := dataprotect.NewCompressor(dataprotect.CompressionZstd)
	require.NoError(t, err)

	return dataprotect.NewDataProtector(dataprotect.NewAES(), dataprotect.CompressionZstd, compressor)
}

func createRequest() *policy.CreatePolicyRequest {
	return &policy.CreatePolicyRequest{
		Resource:           []byte("the launch code is 0000"),
		MimeType:           "text/plain",
		IsText:             true,
		ReferenceImage:     []byte("jpeg bytes"),
		ReferenceImageType: "image/jpeg",
		ExpirySeconds:      3600,
		MaxAttempts:        3,
	}
}

func TestCreatePolicy(t *testing.T) {
	referenceEmbedding := []float64{0.1, 0.5, 0.9}

	t.Run("success", func(t *testing.T) {
		ledgerModel := mockledger.NewInMemory()
		contentStore := newFakeContentStore()
		bundleStore := newFakeBundleStore()
		protector := newProtector(t)

		svc := policy.New(&policy.Config{
			LedgerClient:  ledgerModel,
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  contentStore,
			BundleStore:   bundleStore,
			DataProtector: protector,
			KeyGenerator:  dataprotect.NewAES(),
		})

		created, err := svc.CreatePolicy(context.Background(), createRequest())
		require.NoError(t, err)
		require.Len(t, created.PolicyID, 2+2*ledger.PolicyIDLength)
		require.EqualValues(t, 3, created.MaxAttempts)

		record, err := ledgerModel.GetPolicy(context.Background(), created.PolicyID)
		require.NoError(t, err)
		require.True(t, record.Usable(time.Now()))
		require.EqualValues(t, 3, record.MaxAttempts)

		bundle, err := bundleStore.Get(context.Background(), created.PolicyID)
		require.NoError(t, err)
		require.True(t, bundle.Valid)
		require.Len(t, bundle.SecretKey, dataprotect.KeyLength)
		require.Equal(t, dataprotect.CompressionZstd, bundle.Compression)

		// The ciphertexts round-trip with the stored key.
		resource, err := protector.Open(contentStore.blobs[bundle.ResourceCID], bundle.SecretKey, bundle.Compression)
		require.NoError(t, err)
		require.Equal(t, []byte("the launch code is 0000"), resource)

		embeddingBytes, err := protector.Open(
			contentStore.blobs[bundle.ReferenceEmbeddingCID], bundle.SecretKey, bundle.Compression)
		require.NoError(t, err)

		vector, err := embedding.Unmarshal(embeddingBytes)
		require.NoError(t, err)
		require.Equal(t, referenceEmbedding, vector)
	})

	t.Run("zero expiry creates an already-expired policy", func(t *testing.T) {
		ledgerModel := mockledger.NewInMemory()

		svc := policy.New(&policy.Config{
			LedgerClient:  ledgerModel,
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  newFakeContentStore(),
			BundleStore:   newFakeBundleStore(),
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
		})

		req := createRequest()
		req.ExpirySeconds = 0

		created, err := svc.CreatePolicy(context.Background(), req)
		require.NoError(t, err)

		record, err := ledgerModel.GetPolicy(context.Background(), created.PolicyID)
		require.NoError(t, err)
		require.False(t, record.Usable(time.Now()))
	})

	t.Run("policy ID collision re-rolled", func(t *testing.T) {
		colliding := &collidingLedger{InMemory: mockledger.NewInMemory(), collisions: 2}

		svc := policy.New(&policy.Config{
			LedgerClient:  colliding,
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  newFakeContentStore(),
			BundleStore:   newFakeBundleStore(),
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
		})

		created, err := svc.CreatePolicy(context.Background(), createRequest())
		require.NoError(t, err)
		require.NotEmpty(t, created.PolicyID)
		require.Equal(t, 3, colliding.creates)
	})

	t.Run("collision retries exhausted", func(t *testing.T) {
		colliding := &collidingLedger{InMemory: mockledger.NewInMemory(), collisions: 100}

		svc := policy.New(&policy.Config{
			LedgerClient:  colliding,
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  newFakeContentStore(),
			BundleStore:   newFakeBundleStore(),
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
			MaxIDRetries:  2,
		})

		_, err := svc.CreatePolicy(context.Background(), createRequest())
		require.ErrorContains(t, err, "retries exhausted")
		require.Equal(t, 2, colliding.creates)
	})

	t.Run("extractor failure", func(t *testing.T) {
		svc := policy.New(&policy.Config{
			LedgerClient:  mockledger.NewInMemory(),
			VisionClient:  &fakeVision{err: errors.New("no subject detected")},
			ContentStore:  newFakeContentStore(),
			BundleStore:   newFakeBundleStore(),
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
		})

		_, err := svc.CreatePolicy(context.Background(), createRequest())
		require.ErrorContains(t, err, "extract reference embedding")
	})

	t.Run("upload failure", func(t *testing.T) {
		contentStore := newFakeContentStore()
		contentStore.putErr = errors.New("bucket unavailable")
		ledgerModel := mockledger.NewInMemory()

		svc := policy.New(&policy.Config{
			LedgerClient:  ledgerModel,
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  contentStore,
			BundleStore:   newFakeBundleStore(),
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
		})

		_, err := svc.CreatePolicy(context.Background(), createRequest())
		require.ErrorContains(t, err, "bucket unavailable")
	})

	t.Run("metadata write failure surfaces", func(t *testing.T) {
		bundleStore := newFakeBundleStore()
		bundleStore.putErr = errors.New("mongo down")

		svc := policy.New(&policy.Config{
			LedgerClient:  mockledger.NewInMemory(),
			VisionClient:  &fakeVision{embedding: referenceEmbedding},
			ContentStore:  newFakeContentStore(),
			BundleStore:   bundleStore,
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
		})

		_, err := svc.CreatePolicy(context.Background(), createRequest())
		require.ErrorContains(t, err, "store bundle metadata")
	})

	t.Run("validation", func(t *testing.T) {
		svc := policy.New(&policy.Config{})

		tests := []struct {
			name    string
			mutate  func(req *policy.CreatePolicyRequest)
			wantErr string
		}{
			{
				name:    "missing resource",
				mutate:  func(req *policy.CreatePolicyRequest) { req.Resource = nil },
				wantErr: "resource is required",
			},
			{
				name:    "missing reference image",
				mutate:  func(req *policy.CreatePolicyRequest) { req.ReferenceImage = nil },
				wantErr: "reference image is required",
			},
			{
				name:    "negative expiry",
				mutate:  func(req *policy.CreatePolicyRequest) { req.ExpirySeconds = -5 },
				wantErr: "expiry must not be negative",
			},
			{
				name:    "zero attempts",
				mutate:  func(req *policy.CreatePolicyRequest) { req.MaxAttempts = 0 },
				wantErr: "maxAttempts must be at least 1",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := createRequest()
				tt.mutate(req)

				_, err := svc.CreatePolicy(context.Background(), req)
				require.ErrorContains(t, err, tt.wantErr)
			})
		}
	})
}

func TestGetPolicyInfo(t *testing.T) {
	setup := func(t *testing.T) (*policy.Service, *mockledger.InMemory, *fakeBundleStore, *fakeStatusCache, string) {
		t.Helper()

		ledgerModel := mockledger.NewInMemory()
		bundleStore := newFakeBundleStore()
		cache := newFakeStatusCache()

		svc := policy.New(&policy.Config{
			LedgerClient:  ledgerModel,
			VisionClient:  &fakeVision{embedding: []float64{1, 0}},
			ContentStore:  newFakeContentStore(),
			BundleStore:   bundleStore,
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
			StatusCache:   cache,
		})

		created, err := svc.CreatePolicy(context.Background(), createRequest())
		require.NoError(t, err)

		return svc, ledgerModel, bundleStore, cache, created.PolicyID
	}

	t.Run("usable policy", func(t *testing.T) {
		svc, _, bundleStore, cache, policyID := setup(t)

		info, err := svc.GetPolicyInfo(context.Background(), policyID)
		require.NoError(t, err)
		require.True(t, info.Valid)
		require.Equal(t, bundleStore.bundles[policyID].ReferenceEmbeddingCID, info.ReferenceEmbeddingCID)
		require.EqualValues(t, 3, info.RemainingAttempts)

		// The ledger read is now cached.
		require.Contains(t, cache.records, policyID)
	})

	t.Run("served from cache", func(t *testing.T) {
		svc, ledgerModel, _, cache, policyID := setup(t)

		_, err := svc.GetPolicyInfo(context.Background(), policyID)
		require.NoError(t, err)

		// Subsequent reads do not hit the ledger.
		ledgerModel.ReadErr = errors.New("gateway down")

		info, err := svc.GetPolicyInfo(context.Background(), policyID)
		require.NoError(t, err)
		require.True(t, info.Valid)
		require.Contains(t, cache.records, policyID)
	})

	t.Run("unknown policy", func(t *testing.T) {
		svc, _, _, _, _ := setup(t) //nolint:dogsled

		_, err := svc.GetPolicyInfo(context.Background(),
			"0x0000000000000000000000000000000000000000000000000000000000000009")
		require.ErrorIs(t, err, policy.ErrDataNotFound)
	})

	t.Run("malformed policy ID", func(t *testing.T) {
		svc, _, _, _, _ := setup(t) //nolint:dogsled

		_, err := svc.GetPolicyInfo(context.Background(), "not-a-policy-id")
		require.ErrorIs(t, err, policy.ErrInvalidRequest)
	})
}

func TestRevokePolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ledgerModel := mockledger.NewInMemory()
		bundleStore := newFakeBundleStore()
		cache := newFakeStatusCache()

		svc := policy.New(&policy.Config{
			LedgerClient:  ledgerModel,
			VisionClient:  &fakeVision{embedding: []float64{1, 0}},
			ContentStore:  newFakeContentStore(),
			BundleStore:   bundleStore,
			DataProtector: newProtector(t),
			KeyGenerator:  dataprotect.NewAES(),
			StatusCache:   cache,
		})

		created, err := svc.CreatePolicy(context.Background(), createRequest())
		require.NoError(t, err)

		require.NoError(t, svc.RevokePolicy(context.Background(), created.PolicyID))

		valid, err := ledgerModel.IsPolicyValid(context.Background(), created.PolicyID)
		require.NoError(t, err)
		require.False(t, valid)

		require.False(t, bundleStore.bundles[created.PolicyID].Valid)
		require.Contains(t, cache.invalidated, created.PolicyID)

		info, err := svc.GetPolicyInfo(context.Background(), created.PolicyID)
		require.NoError(t, err)
		require.False(t, info.Valid)
	})

	t.Run("unknown policy", func(t *testing.T) {
		svc := policy.New(&policy.Config{
			LedgerClient: mockledger.NewInMemory(),
			BundleStore:  newFakeBundleStore(),
		})

		err := svc.RevokePolicy(context.Background(),
			"0x0000000000000000000000000000000000000000000000000000000000000009")
		require.ErrorIs(t, err, ledger.ErrPolicyNotFound)
	})

	t.Run("malformed policy ID", func(t *testing.T) {
		svc := policy.New(&policy.Config{
			LedgerClient: mockledger.NewInMemory(),
			BundleStore:  newFakeBundleStore(),
		})

		err := svc.RevokePolicy(context.Background(), "0xZZZZ")
		require.ErrorIs(t, err, policy.ErrInvalidRequest)
	})
}
