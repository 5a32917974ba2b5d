package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultConnectionTokenTTL defines the fallback validity period for
// connection tokens. Tokens only gate the websocket handshake, so they
// stay short-lived.
const DefaultConnectionTokenTTL = 5 * time.Minute

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// ConnectionClaims are embedded in issued connection tokens and carry the
// verified identity the gateway trusts when accepting a websocket.
type ConnectionClaims struct {
	SessionID     string `json:"sid"`
	ParticipantID string `json:"pid"`
	DisplayName   string `json:"name,omitempty"`
	Role          string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ConnectionTokenInput holds the parameters used when issuing a token.
type ConnectionTokenInput struct {
	SessionID     string
	ParticipantID string
	DisplayName   string
	Role          string
}

// TokenService issues and validates signed connection tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService once the signing secret is supplied.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultConnectionTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// IssueConnectionToken signs a token binding a participant to one session.
func (s *TokenService) IssueConnectionToken(input ConnectionTokenInput) (string, error) {
	if input.SessionID == "" {
		return "", errors.New("auth: session id is required")
	}
	if input.ParticipantID == "" {
		return "", errors.New("auth: participant id is required")
	}

	now := s.now()
	claims := &ConnectionClaims{
		SessionID:     input.SessionID,
		ParticipantID: input.ParticipantID,
		DisplayName:   input.DisplayName,
		Role:          input.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   input.ParticipantID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, nil
}

// VerifyConnectionToken parses and validates a signed token, returning the
// connection claims.
func (s *TokenService) VerifyConnectionToken(tokenString string) (*ConnectionClaims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims ConnectionClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("auth: invalid issuer")
	}
	if claims.SessionID == "" || claims.ParticipantID == "" {
		return nil, errors.New("auth: missing identity claims")
	}

	return &claims, nil
}
