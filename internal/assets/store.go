package assets

import (
	"context"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/primepix/orderflow/internal/aws"
)

// Store accepts a customer-uploaded blob and returns an opaque reference.
// Size enforcement happens at the HTTP layer; the store just persists bytes.
type Store interface {
	Put(ctx context.Context, orderID, filename string, body io.Reader) (string, error)
}

// S3Store persists assets under orders/<orderID>/<filename>.
type S3Store struct {
	client aws.S3API
	bucket string
}

// NewS3Store returns an S3-backed asset store.
func NewS3Store(client aws.S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, orderID, filename string, body io.Reader) (string, error) {
	key := path.Join("orders", orderID, filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// MemoryStore keeps assets in memory. Used by tests and local development
// runs without a bucket.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty in-memory asset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: map[string][]byte{}}
}

func (s *MemoryStore) Put(ctx context.Context, orderID, filename string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}
	key := path.Join("orders", orderID, filename)
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return "mem://" + key, nil
}

// Get returns a stored blob. Test helper.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	return data, ok
}
