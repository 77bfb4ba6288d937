package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/radio-control/wifid/internal/config"
)

// Signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	Algorithm string

	// HS256
	Secret string

	// RS256
	PublicKeyPEM string
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	Roles  []string `json:"roles,omitempty"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	alg       string
	secret    []byte
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewVerifier creates a verifier for one algorithm.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{alg: cfg.Algorithm}

	switch cfg.Algorithm {
	case AlgHS256:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("HS256 requires a secret")
		}
		v.secret = []byte(cfg.Secret)
	case AlgRS256:
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{cfg.Algorithm}),
		jwt.WithExpirationRequired(),
	)
	return v, nil
}

// NewVerifierFromConfig builds a verifier from the auth config section, reading the RS256
// public key from disk.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	vc := VerifierConfig{Algorithm: cfg.Algorithm, Secret: cfg.Secret}
	if cfg.Algorithm == AlgRS256 {
		pemData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		vc.PublicKeyPEM = string(pemData)
	}
	return NewVerifier(vc)
}

// VerifyToken verifies a JWT and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty: %w", ErrInvalidToken)
	}

	var tc tokenClaims
	token, err := v.parser.ParseWithClaims(tokenString, &tc, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if tc.Subject == "" {
		return nil, fmt.Errorf("missing 'sub' claim: %w", ErrInvalidToken)
	}
	if len(tc.Scopes) == 0 {
		return nil, fmt.Errorf("missing 'scopes' claim: %w", ErrInvalidToken)
	}
	for _, s := range tc.Scopes {
		if !slices.Contains(knownScopes, s) {
			return nil, fmt.Errorf("unknown scope %q: %w", s, ErrInvalidToken)
		}
	}

	return &Claims{
		Subject: tc.Subject,
		Roles:   tc.Roles,
		Scopes:  tc.Scopes,
	}, nil
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	if v.alg == AlgRS256 {
		return v.publicKey, nil
	}
	return v.secret, nil
}
