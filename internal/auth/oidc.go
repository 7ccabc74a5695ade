package auth

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCAuthenticator verifies tokens issued by an OpenID Connect provider (Keycloak in
// production) against the provider's published keys.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCAuthenticator discovers the provider at issuer. An empty clientID skips the
// audience check.
func NewOIDCAuthenticator(ctx context.Context, issuer, clientID string) (*OIDCAuthenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: clientID == "",
	})
	return &OIDCAuthenticator{verifier: verifier}, nil
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, rawToken string) (models.Identity, error) {
	idToken, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := new(Claims)
	if err := idToken.Claims(claims); err != nil {
		return models.Identity{}, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}
	claims.Subject = idToken.Subject
	return claims.identity()
}
