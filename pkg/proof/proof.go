// Package proof issues the payment proofs handed to content servers.
//
// A proof is an EdDSA-signed JWT. Each agent signs with its own Ed25519 key,
// derived deterministically from a process master seed with HKDF-SHA256, so
// a content server holding the agent's public key can check the signature.
package proof

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const kdfSalt = "path402-proof-kdf"

// Issuer is the JWT issuer claim on every proof.
const Issuer = "path402"

// Claims are the payment proof claims.
type Claims struct {
	jwt.RegisteredClaims
	TokenID string `json:"tid"`
	Amount  int64  `json:"amt"`
}

// Signer derives per-agent keys and signs proofs.
type Signer struct {
	seed  []byte
	mu    sync.Mutex
	keys  map[string]ed25519.PrivateKey
	clock func() time.Time
}

// NewSigner creates a signer over seed. An empty seed generates a random one,
// which means proofs cannot be verified across restarts.
func NewSigner(seed []byte) (*Signer, error) {
	if len(seed) == 0 {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate proof seed: %w", err)
		}
	}
	return &Signer{
		seed:  append([]byte(nil), seed...),
		keys:  make(map[string]ed25519.PrivateKey),
		clock: time.Now,
	}, nil
}

// WithClock overrides the issued-at clock for testing.
func (s *Signer) WithClock(clock func() time.Time) *Signer {
	s.clock = clock
	return s
}

func (s *Signer) key(agentID string) (ed25519.PrivateKey, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agentID must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[agentID]; ok {
		return k, nil
	}

	r := hkdf.New(sha256.New, s.seed, []byte(kdfSalt), []byte(agentID))
	agentSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, agentSeed); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	k := ed25519.NewKeyFromSeed(agentSeed)
	s.keys[agentID] = k
	return k, nil
}

// PublicKey returns the agent's verification key.
func (s *Signer) PublicKey(agentID string) (ed25519.PublicKey, error) {
	k, err := s.key(agentID)
	if err != nil {
		return nil, err
	}
	return k.Public().(ed25519.PublicKey), nil
}

// Issue signs a proof that agentID paid amount sats for address under tokenID.
func (s *Signer) Issue(agentID, address, tokenID string, amount int64) (string, error) {
	k, err := s.key(agentID)
	if err != nil {
		return "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   Issuer,
			Subject:  agentID,
			Audience: jwt.ClaimStrings{address},
			IssuedAt: jwt.NewNumericDate(s.clock().UTC()),
		},
		TokenID: tokenID,
		Amount:  amount,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k)
	if err != nil {
		return "", fmt.Errorf("sign proof: %w", err)
	}
	return signed, nil
}

// Verify checks the proof signature against agentID's key and, when address
// is set, the audience. It does not check that any payment settled.
func (s *Signer) Verify(agentID, address, token string) (*Claims, error) {
	pub, err := s.PublicKey(agentID)
	if err != nil {
		return nil, err
	}
	return Verify(pub, address, token)
}

// Verify checks a proof against a known public key.
func Verify(pub ed25519.PublicKey, address, token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithIssuer(Issuer)}
	if address != "" {
		opts = append(opts, jwt.WithAudience(address))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims, ok := parsed.Claims.(*Claims); ok && parsed.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenSignatureInvalid
}
