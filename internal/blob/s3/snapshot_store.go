package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mingfai/stockledger/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore on an S3-compatible bucket.
// The whole envelope lives in one JSON object, so every Save supersedes the
// previous snapshot atomically and the version can never drift from the
// record set it was fetched with.
type SnapshotStore struct {
	client *s3.Client
	bucket string
	key    string
}

// NewSnapshotStore creates a SnapshotStore that keeps the envelope under
// {prefix}/snapshot.json in the client's configured bucket.
func NewSnapshotStore(c *Client, prefix string) *SnapshotStore {
	if prefix == "" {
		prefix = "stockledger"
	}
	return &SnapshotStore{
		client: c.s3,
		bucket: c.bucket,
		key:    prefix + "/snapshot.json",
	}
}

// Load returns the stored envelope, or domain.ErrNoSnapshot when the object
// does not exist.
func (s *SnapshotStore) Load(ctx context.Context) (domain.CacheEnvelope, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isNotFound(err) {
			return domain.CacheEnvelope{}, domain.ErrNoSnapshot
		}
		return domain.CacheEnvelope{}, fmt.Errorf("s3blob: load snapshot %s: %w", s.key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return domain.CacheEnvelope{}, fmt.Errorf("s3blob: read snapshot %s: %w", s.key, err)
	}

	var env domain.CacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.CacheEnvelope{}, fmt.Errorf("s3blob: unmarshal snapshot %s: %w", s.key, err)
	}
	return env, nil
}

// Save overwrites the snapshot object.
func (s *SnapshotStore) Save(ctx context.Context, env domain.CacheEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: save snapshot %s version %s: %w", s.key, env.Version, err)
	}
	return nil
}

// Clear removes the snapshot object. Idempotent: no error if the object does
// not exist.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return fmt.Errorf("s3blob: clear snapshot %s: %w", s.key, err)
	}
	return nil
}

// isNotFound returns true when the error indicates the requested S3 object
// does not exist, covering both the SDK typed error and the generic 404 that
// some S3-compatible providers send.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	if errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
