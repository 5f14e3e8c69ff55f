/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package bundlestore persists the metadata index: the mapping from policy ID
// to content pointers, secret key and payload attributes. Written once at
// policy creation; only the validity flag is mutable afterwards.
package bundlestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/service/policy"
	"github.com/trustbloc/shield/pkg/storage/mongodb"
)

const (
	bundleStoreName   = "policybundles"
	policyIDFieldName = "policyID"
)

type mongoDocument struct {
	PolicyID              string    `bson:"policyID"`
	ResourceCID           string    `bson:"resourceCID"`
	ReferenceEmbeddingCID string    `bson:"referenceEmbeddingCID"`
	SecretKey             []byte    `bson:"secretKey"`
	MimeType              string    `bson:"mimeType"`
	IsText                bool      `bson:"isText"`
	Compression           string    `bson:"compression"`
	Valid                 bool      `bson:"valid"`
	CreatedAt             time.Time `bson:"createdAt"`
}

// Store manages encrypted bundle metadata in MongoDB.
type Store struct {
	mongoClient *mongodb.Client
}

// NewStore creates Store.
func NewStore(mongoClient *mongodb.Client) *Store {
	return &Store{mongoClient: mongoClient}
}

// MigrateIndexes creates the unique policy ID index.
func (s *Store) MigrateIndexes(ctx context.Context) error {
	_, err := s.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: policyIDFieldName, Value: 1}},
		Options: mongooptions.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create bundle store indexes: %w", err)
	}

	return nil
}

// Put inserts the bundle. A bundle is written exactly once per policy.
func (s *Store) Put(ctx context.Context, bundle *policy.EncryptedBundle) error {
	document := mongoDocument{
		PolicyID:              bundle.PolicyID,
		ResourceCID:           bundle.ResourceCID,
		ReferenceEmbeddingCID: bundle.ReferenceEmbeddingCID,
		SecretKey:             bundle.SecretKey,
		MimeType:              bundle.MimeType,
		IsText:                bundle.IsText,
		Compression:           string(bundle.Compression),
		Valid:                 bundle.Valid,
		CreatedAt:             bundle.CreatedAt.UTC(),
	}

	_, err := s.collection().InsertOne(ctx, document)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("bundle for policy %s already exists", bundle.PolicyID)
		}

		return fmt.Errorf("insert bundle: %w", err)
	}

	return nil
}

// Get returns the bundle for the policy ID.
func (s *Store) Get(ctx context.Context, policyID string) (*policy.EncryptedBundle, error) {
	document := mongoDocument{}

	err := s.collection().FindOne(ctx, bson.D{
		{Key: policyIDFieldName, Value: policyID},
	}).Decode(&document)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, policy.ErrDataNotFound
		}

		return nil, fmt.Errorf("failed to query MongoDB: %w", err)
	}

	return &policy.EncryptedBundle{
		PolicyID:              document.PolicyID,
		ResourceCID:           document.ResourceCID,
		ReferenceEmbeddingCID: document.ReferenceEmbeddingCID,
		SecretKey:             document.SecretKey,
		MimeType:              document.MimeType,
		IsText:                document.IsText,
		Compression:           dataprotect.Compression(document.Compression),
		Valid:                 document.Valid,
		CreatedAt:             document.CreatedAt,
	}, nil
}

// SetValid flips the bundle-level validity flag (owner revocation).
func (s *Store) SetValid(ctx context.Context, policyID string, valid bool) error {
	result, err := s.collection().UpdateOne(ctx,
		bson.D{{Key: policyIDFieldName, Value: policyID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "valid", Value: valid}}}})
	if err != nil {
		return fmt.Errorf("update bundle validity: %w", err)
	}

	if result.MatchedCount == 0 {
		return policy.ErrDataNotFound
	}

	return nil
}

func (s *Store) collection() *mongo.Collection {
	return s.mongoClient.Database().Collection(bundleStoreName)
}
