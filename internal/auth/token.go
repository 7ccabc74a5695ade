package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Authenticator turns a raw bearer token into the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (models.Identity, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: authorization header format must be 'Bearer {token}'", ErrInvalidToken)
	}

	return parts[1], nil
}

// Claims is the subset of token claims this service reads. Roles may come either as a
// top-level "roles" array or inside Keycloak's "realm_access".
type Claims struct {
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Roles             []string `json:"roles,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (models.Identity, error) {
	if c.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: subject claim not found in token", ErrInvalidToken)
	}
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	roles := append([]string{}, c.Roles...)
	roles = append(roles, c.RealmAccess.Roles...)
	return models.Identity{UserID: c.Subject, Name: name, Email: c.Email, Roles: roles}, nil
}

// HMACAuthenticator verifies HS256 tokens signed with a shared secret. It is meant for
// deployments without an identity provider and for local development.
type HMACAuthenticator struct {
	secret []byte
}

func NewHMACAuthenticator(secret string) *HMACAuthenticator {
	return &HMACAuthenticator{secret: []byte(secret)}
}

func (a *HMACAuthenticator) Authenticate(_ context.Context, rawToken string) (models.Identity, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.identity()
}

// Sign mints a token for id that this authenticator accepts.
func (a *HMACAuthenticator) Sign(id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  id.Name,
		Email: id.Email,
		Roles: id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
