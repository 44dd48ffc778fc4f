package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// EncryptionKeyEnv is the environment variable carrying the urlsafe-base64
// 32-byte field encryption key.
const EncryptionKeyEnv = "MEDICAL_DATA_ENCRYPTION_KEY"

// FieldCipher encrypts individual medical fields into opaque printable
// tokens. Values are serialized to JSON, sealed with AES-256-GCM and
// wrapped in urlsafe base64.
type FieldCipher struct {
	aead      cipher.AEAD
	ephemeral bool
	logger    *zap.Logger
}

// NewFieldCipher builds a cipher from the configured key. An empty key is
// the degraded mode: a one-off process key is generated and a warning is
// emitted, because data encrypted with it cannot be recovered after restart.
func NewFieldCipher(encodedKey string, logger *zap.Logger) (*FieldCipher, error) {
	ephemeral := false
	var key []byte

	if encodedKey != "" {
		decoded, err := base64.URLEncoding.DecodeString(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(decoded))
		}
		key = decoded
	} else {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		ephemeral = true
		logger.Warn("No encryption key configured, generated ephemeral key",
			zap.String("env_var", EncryptionKeyEnv),
			zap.String("generated_key", base64.URLEncoding.EncodeToString(key)),
		)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	return &FieldCipher{aead: aead, ephemeral: ephemeral, logger: logger}, nil
}

// Ephemeral reports whether the key was generated for this process only.
func (c *FieldCipher) Ephemeral() bool {
	return c.ephemeral
}

// EncryptList seals a list value into an opaque token.
func (c *FieldCipher) EncryptList(values []string) (string, error) {
	return c.seal(values)
}

// EncryptString seals a scalar value into an opaque token.
func (c *FieldCipher) EncryptString(value string) (string, error) {
	return c.seal(value)
}

func (c *FieldCipher) seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize field: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptList resolves a stored list field back to plaintext values. Input
// that is already structured plaintext (records written before encryption
// was enabled) is parsed directly. On any failure ok is false and the
// caller keeps the raw input unchanged.
func (c *FieldCipher) DecryptList(data string) (values []string, ok bool) {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return nil, false
		}
		return values, true
	}

	plaintext, err := c.open(trimmed)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, false
	}
	return values, true
}

// DecryptString resolves a stored scalar field back to plaintext.
func (c *FieldCipher) DecryptString(data string) (value string, ok bool) {
	trimmed := strings.TrimSpace(data)
	plaintext, err := c.open(trimmed)
	if err != nil {
		return "", false
	}
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return "", false
	}
	return value, true
}

func (c *FieldCipher) open(token string) ([]byte, error) {
	sealed, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("not a valid token: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return nil, fmt.Errorf("token too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
