// Package token verifies the bearer credentials presented to the API. Role
// grants inside a token are hints; the membership store stays authoritative.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/orgservice/internal/config"
)

var (
	ErrInvalidToken  = errors.New("invalid_token")
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	GlobalAdmin bool     `json:"global_admin,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Principal is the verified caller.
type Principal struct {
	UserID      snowflake.ID
	GlobalAdmin bool
	Grants      []Grant
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(cfg config.Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		now:    time.Now,
	}, nil
}

// Verify checks signature, expiry and issuer and decodes the principal.
func (v *Verifier) Verify(raw string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}

	grants, err := ParseGrants(claims.Roles)
	if err != nil {
		return nil, err
	}

	return &Principal{
		UserID:      userID,
		GlobalAdmin: claims.GlobalAdmin,
		Grants:      grants,
	}, nil
}

// Issuer signs tokens with the same secret the Verifier checks. It backs local
// tooling and tests.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(cfg config.Config, ttl time.Duration) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (i *Issuer) Issue(p Principal) (string, error) {
	now := i.now()
	roles := make([]string, 0, len(p.Grants))
	for _, g := range p.Grants {
		if encoded := EncodeGrant(g); encoded != "" {
			roles = append(roles, encoded)
		}
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		GlobalAdmin: p.GlobalAdmin,
		Roles:       roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
