/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package contentstore implements content-addressed storage of encrypted
// blobs on S3. The content identifier is the hex SHA-256 of the ciphertext;
// objects are immutable and never deleted by the protocol.
package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	contentType  = "application/octet-stream"
	objectPrefix = "blobs/"
)

// ErrContentNotFound indicates that no blob exists under the content ID.
var ErrContentNotFound = errors.New("content not found")

type s3Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store manages encrypted blobs in an S3 bucket.
type Store struct {
	s3Uploader s3Uploader
	bucket     string
}

// NewStore creates S3 Store.
func NewStore(s3Uploader s3Uploader, bucket string) *Store {
	return &Store{
		s3Uploader: s3Uploader,
		bucket:     bucket,
	}
}

// Put stores the blob and returns its content ID. Re-putting identical
// content is a no-op upsert under the same key.
func (p *Store) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty content")
	}

	digest := sha256.Sum256(data)
	cid := hex.EncodeToString(digest[:])

	_, err := p.s3Uploader.PutObject(ctx, &s3.PutObjectInput{
		Body:        bytes.NewReader(data),
		Key:         aws.String(resolveS3Key(cid)),
		Bucket:      aws.String(p.bucket),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}

	return cid, nil
}

// Get returns the blob for the content ID.
func (p *Store) Get(ctx context.Context, cid string) ([]byte, error) {
	result, err := p.s3Uploader.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(resolveS3Key(cid)),
	})
	if err != nil {
		var awsError *types.NoSuchKey
		if errors.As(err, &awsError) {
			return nil, ErrContentNotFound
		}

		if strings.Contains(err.Error(), "AccessDenied") {
			return nil, ErrContentNotFound
		}

		return nil, fmt.Errorf("failed to get content from S3: %w", err)
	}

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read content body: %w", err)
	}

	digest := sha256.Sum256(data)
	if hex.EncodeToString(digest[:]) != cid {
		return nil, fmt.Errorf("content digest mismatch for %s", cid)
	}

	return data, nil
}

func resolveS3Key(cid string) string {
	return objectPrefix + cid
}
