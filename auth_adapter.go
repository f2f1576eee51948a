package cmdbind

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nlstn/go-cmdbind/internal/auth"
)

// Identity describes the authenticated caller of a command request.
type Identity = auth.Identity

// Claim is a single name/value assertion about an identity.
type Claim = auth.Claim

// Decision represents the result of an authorization check.
type Decision = auth.Decision

// Check evaluates one authorization rule against a command and an identity.
type Check = auth.Check

// Allow returns an allow decision.
func Allow() Decision {
	return auth.Allow()
}

// AllowFinal returns an allow decision that stops the chain. Later checks
// are not evaluated.
func AllowFinal() Decision {
	return auth.AllowFinal()
}

// Deny returns a deny decision with the given reason.
func Deny(reason Reason) Decision {
	return auth.Deny(reason)
}

// DefaultChecks returns the standard authorization chain: anonymous commands
// pass immediately, everything else requires an authenticated identity with
// matching roles and claims.
func DefaultChecks() []Check {
	return auth.DefaultChecks()
}

// AllowAnonymousCheck passes commands that declare AllowAnonymous.
type AllowAnonymousCheck = auth.AllowAnonymousCheck

// AuthenticatedIdentityCheck requires an authenticated caller for commands
// that are not anonymous.
type AuthenticatedIdentityCheck = auth.AuthenticatedIdentityCheck

// RoleMatchCheck requires the caller to hold at least one of a command's
// declared roles.
type RoleMatchCheck = auth.RoleMatchCheck

// ClaimMatchCheck requires the caller to hold a command's declared claim
// with the exact value.
type ClaimMatchCheck = auth.ClaimMatchCheck

// WithIdentity returns a context carrying the given identity. Custom
// authentication middleware uses this to hand the caller to the binder.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return auth.WithIdentity(ctx, id)
}

// IdentityFromContext returns the identity stored in the context, or an
// anonymous identity when none is present.
func IdentityFromContext(ctx context.Context) Identity {
	return auth.IdentityFromContext(ctx)
}

// TokenParser validates bearer tokens and turns their claims into identities.
type TokenParser = auth.TokenParser

// TokenOption configures a TokenParser.
type TokenOption = auth.TokenOption

// NewTokenParser creates a parser for HMAC-signed JWTs using the given
// secret.
func NewTokenParser(secret []byte, opts ...TokenOption) (*TokenParser, error) {
	return auth.NewTokenParser(secret, opts...)
}

// WithIssuer requires tokens to carry the given issuer.
func WithIssuer(issuer string) TokenOption {
	return auth.WithIssuer(issuer)
}

// IdentityMiddleware returns middleware that extracts a bearer token from
// the Authorization header and stores the resulting identity in the request
// context. Requests without a valid token proceed anonymously.
func IdentityMiddleware(parser *TokenParser, logger *slog.Logger) func(http.Handler) http.Handler {
	return parser.Middleware(logger)
}
