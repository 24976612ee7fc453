// Package token verifies access tokens presented by browsers during the
// redirect binding path and mints the short-lived access tokens handed back
// to the CLI once a device session is authorized.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/branchbase/cli-auth-server/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")
)

type Config struct {
	Issuer     string        // e.g. "cli-auth"
	Audience   string        // e.g. "branchbase-clients"
	AccessTTL  time.Duration // e.g. 15 * time.Minute
	SigningKey []byte        // HS256 secret
}

// Claims is the identity a verified access token carries.
type Claims struct {
	ProjectID string `json:"projectId"`
	BranchID  string `json:"branchId"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) Tenancy() model.Tenancy {
	return model.Tenancy{ProjectID: c.ProjectID, BranchID: c.BranchID}
}

// Codec signs and verifies HS256 access tokens.
type Codec struct {
	cfg Config
	now func() time.Time
}

func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg, now: time.Now}
}

// Issue mints an access token for the given user scoped to the tenancy.
func (c *Codec) Issue(userID string, tenancy model.Tenancy) (string, error) {
	now := c.now().UTC()

	claims := Claims{
		ProjectID: tenancy.ProjectID,
		BranchID:  tenancy.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Decode verifies a presented access token and extracts its identity claims.
func (c *Codec) Decode(raw string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			return c.cfg.SigningKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.ProjectID == "" || claims.BranchID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
