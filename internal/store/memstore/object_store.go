package memstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// ObjectStore is an in-memory ports.ObjectStore. Writes without server-side
// encryption are rejected, matching the production bucket policy. With a KMS
// attached, payloads are sealed at rest and opened on read.
type ObjectStore struct {
	kms   ports.KMS
	keyID string

	mu      sync.RWMutex
	objects map[string][]byte
	metas   map[string]ports.ObjectMeta
}

var _ ports.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore constructs an empty in-memory object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[string][]byte),
		metas:   make(map[string]ports.ObjectMeta),
	}
}

// NewEncryptedObjectStore constructs a store that seals payloads through the
// KMS under the given key id.
func NewEncryptedObjectStore(kms ports.KMS, keyID string) *ObjectStore {
	s := NewObjectStore()
	s.kms = kms
	s.keyID = keyID
	return s
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

func (s *ObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, meta ports.ObjectMeta) error {
	if !meta.Encrypted {
		return apperrors.Validation("encryption_required",
			"object %s/%s must be written with server-side encryption", bucket, key)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return apperrors.Internal(err)
	}
	size := int64(len(data))
	if s.kms != nil {
		if data, err = s.kms.Encrypt(ctx, s.keyID, data); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	full := objectKey(bucket, key)
	meta.Bucket = bucket
	meta.Key = key
	meta.Size = size
	s.objects[full] = data
	s.metas[full] = meta
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, ports.ObjectMeta, error) {
	s.mu.RLock()
	full := objectKey(bucket, key)
	data, ok := s.objects[full]
	meta := s.metas[full]
	s.mu.RUnlock()
	if !ok {
		return nil, ports.ObjectMeta{}, apperrors.NotFound("object", full)
	}
	if s.kms != nil {
		plain, err := s.kms.Decrypt(ctx, s.keyID, data)
		if err != nil {
			return nil, ports.ObjectMeta{}, err
		}
		data = plain
	}
	return io.NopCloser(bytes.NewReader(data)), meta, nil
}

func (s *ObjectStore) Head(_ context.Context, bucket, key string) (ports.ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	full := objectKey(bucket, key)
	meta, ok := s.metas[full]
	if !ok {
		return ports.ObjectMeta{}, apperrors.NotFound("object", full)
	}
	return meta, nil
}
