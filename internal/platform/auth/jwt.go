package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims models the JWT payload issued by the identity provider.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	Role  string   `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256-signed bearer tokens against a shared secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    func() time.Time
}

// JWTVerifierOption customises JWTVerifier behaviour.
type JWTVerifierOption func(*JWTVerifier)

// WithIssuer requires the token iss claim to match the provided value.
func WithIssuer(issuer string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the token aud claim to contain the provided value.
func WithAudience(audience string) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

// WithClock overrides the time source used for expiry checks, mainly for tests.
func WithClock(clock func() time.Time) JWTVerifierOption {
	return func(v *JWTVerifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewJWTVerifier constructs a verifier for HS256 tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTVerifierOption) (*JWTVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}

	v := &JWTVerifier{
		secret: []byte(secret),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify parses and validates the token string, returning the extracted identity.
func (v *JWTVerifier) Verify(tokenStr string) (*Identity, error) {
	if v == nil {
		return nil, ErrTokenInvalid
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	// The parser's time checks run against the wall clock; claims validation is
	// disabled here and the time-based claims are checked below against the
	// injected clock instead.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	now := v.clock().UTC()
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !audienceContains(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Identity{
		UserID: subject,
		Email:  strings.TrimSpace(claims.Email),
		Roles:  rolesFromClaims(claims),
	}, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if strings.EqualFold(strings.TrimSpace(a), want) {
			return true
		}
	}
	return false
}

func rolesFromClaims(claims *Claims) []string {
	seen := make(map[string]struct{}, len(claims.Roles)+1)
	out := make([]string, 0, len(claims.Roles)+1)

	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	for _, role := range claims.Roles {
		add(role)
	}
	add(claims.Role)

	if len(out) == 0 {
		out = append(out, RoleCustomer)
	}
	return out
}
