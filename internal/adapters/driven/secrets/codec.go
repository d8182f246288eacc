package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

// AuthCodec serializes AuthState for the stores. With an Encryptor the blob is
// sealed and bound to the provider id; without one it is plain JSON.
type AuthCodec struct {
	enc *Encryptor
}

// NewAuthCodec creates a codec. enc may be nil.
func NewAuthCodec(enc *Encryptor) *AuthCodec {
	return &AuthCodec{enc: enc}
}

// NewAuthCodecFromKey builds a codec from a configured key string.
// An empty key yields a plain JSON codec.
func NewAuthCodecFromKey(key string) (*AuthCodec, error) {
	if key == "" {
		return NewAuthCodec(nil), nil
	}
	raw, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncryptor(raw)
	if err != nil {
		return nil, err
	}
	return NewAuthCodec(enc), nil
}

// Encrypted reports whether blobs are sealed.
func (c *AuthCodec) Encrypted() bool {
	return c.enc != nil
}

// Encode serializes state.
func (c *AuthCodec) Encode(state *domain.AuthState) ([]byte, error) {
	plaintext, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal auth state: %w", err)
	}
	if c.enc == nil {
		return plaintext, nil
	}
	return c.enc.Seal(plaintext, []byte(state.ProviderID))
}

// Decode restores the state stored for providerID. Plain JSON written before
// a key was configured is still accepted and gets sealed on the next write.
func (c *AuthCodec) Decode(providerID string, blob []byte) (*domain.AuthState, error) {
	plaintext := blob
	if c.enc != nil && (len(blob) == 0 || blob[0] != '{') {
		var err error
		plaintext, err = c.enc.Open(blob, []byte(providerID))
		if err != nil {
			return nil, fmt.Errorf("decrypt auth state for %s: %w", providerID, err)
		}
	}

	var state domain.AuthState
	if err := json.Unmarshal(plaintext, &state); err != nil {
		return nil, fmt.Errorf("unmarshal auth state: %w", err)
	}
	if state.ProviderID != providerID {
		return nil, fmt.Errorf("auth state belongs to %q, not %q", state.ProviderID, providerID)
	}
	return &state, nil
}
