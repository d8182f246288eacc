package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
)

// Ensure Adapter implements StateSigner
var _ driven.StateSigner = (*Adapter)(nil)

const stateIssuer = "sercha-marks"

// stateClaims binds an OAuth state to the provider it was issued for
type stateClaims struct {
	ProviderID string `json:"provider_id"`
	jwt.RegisteredClaims
}

// Adapter signs OAuth state parameters with JWT and hashes control tokens with bcrypt
type Adapter struct {
	jwtSecret  []byte
	bcryptCost int
}

// NewAdapter creates a new auth adapter with the given signing secret
func NewAdapter(jwtSecret string) *Adapter {
	return &Adapter{
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// NewAdapterWithCost creates a new auth adapter with custom bcrypt cost
func NewAdapterWithCost(jwtSecret string, bcryptCost int) *Adapter {
	return &Adapter{
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcryptCost,
	}
}

// Sign creates a signed state for providerID that expires after ttl.
// Each state carries a random ID so two flows never share one.
func (a *Adapter) Sign(providerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	nonce, err := randomID()
	if err != nil {
		return "", fmt.Errorf("generate state id: %w", err)
	}

	claims := stateClaims{
		ProviderID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    stateIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// Verify validates a state and returns the provider it was issued for
func (a *Adapter) Verify(state string) (string, error) {
	if state == "" {
		return "", domain.ErrInvalidState
	}

	token, err := jwt.ParseWithClaims(state, &stateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithIssuer(stateIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid || claims.ProviderID == "" {
		return "", domain.ErrInvalidState
	}
	return claims.ProviderID, nil
}

// HashToken generates a bcrypt hash from a plaintext control token
func (a *Adapter) HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), a.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken checks if a presented token matches a bcrypt hash
func (a *Adapter) VerifyToken(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

func randomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
