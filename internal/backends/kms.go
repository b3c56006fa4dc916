package backends

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"

	"github.com/weny2000/AIAgentSample-sub006/internal/apperrors"
	"github.com/weny2000/AIAgentSample-sub006/internal/ports"
)

// LocalKMS is an in-process AES-GCM ports.KMS. Keys are derived per key id
// from a process secret; suitable for local runs, not shared storage.
type LocalKMS struct {
	secret []byte

	mu   sync.Mutex
	keys map[string]cipher.AEAD
}

var _ ports.KMS = (*LocalKMS)(nil)

// NewLocalKMS constructs a KMS over the given process secret. An empty secret
// gets a random one, so ciphertexts then die with the process.
func NewLocalKMS(secret []byte) *LocalKMS {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &LocalKMS{secret: secret, keys: make(map[string]cipher.AEAD)}
}

func (k *LocalKMS) Encrypt(_ context.Context, keyID string, plaintext []byte) ([]byte, error) {
	aead, err := k.aead(keyID)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperrors.Internal(err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(keyID)), nil
}

func (k *LocalKMS) Decrypt(_ context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	aead, err := k.aead(keyID)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, apperrors.Validation("ciphertext_invalid", "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(keyID))
	if err != nil {
		return nil, apperrors.Validation("decrypt_failed", "cannot decrypt with key %s", keyID)
	}
	return plaintext, nil
}

func (k *LocalKMS) aead(keyID string) (cipher.AEAD, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if aead, ok := k.keys[keyID]; ok {
		return aead, nil
	}
	derived := sha256.Sum256(append(k.secret, []byte(keyID)...))
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	k.keys[keyID] = aead
	return aead, nil
}
