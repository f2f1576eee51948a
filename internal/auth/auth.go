package auth

import (
	"context"

	"github.com/nlstn/go-cmdbind/internal/metadata"
)

// Reason is a machine-readable code describing why a bind attempt failed.
type Reason string

// Reason codes emitted by the deserializer and the authorization chain.
const (
	// ReasonNoBody indicates an empty or whitespace-only request body.
	ReasonNoBody Reason = "unauthorized:no-body"
	// ReasonInvalidJSON indicates the request body is not well-formed JSON.
	ReasonInvalidJSON Reason = "unauthorized:invalid-json"
	// ReasonTypeMismatch indicates the payload's declared command type is
	// unknown or does not belong to the endpoint's command family.
	ReasonTypeMismatch Reason = "parsing:type-mismatch"
	// ReasonMissingField indicates a required payload field is absent.
	ReasonMissingField Reason = "parsing:missing-field"
	// ReasonBodyTooLarge indicates the payload exceeds the configured size cap.
	ReasonBodyTooLarge Reason = "parsing:body-too-large"
	// ReasonRole indicates the caller does not hold any of the required roles.
	ReasonRole Reason = "unauthorized:role"
	// ReasonClaim indicates the caller does not carry the required claim.
	ReasonClaim Reason = "unauthorized:claim"
	// ReasonDenied indicates the chain rejected the command without a more
	// specific reason, including the empty-chain default.
	ReasonDenied Reason = "unauthorized:denied"
	// ReasonRejected indicates a command lifecycle hook vetoed the bind.
	ReasonRejected Reason = "unauthorized:rejected"
)

// Claim is a typed key/value fact about an authenticated caller's identity.
type Claim struct {
	Type  string
	Value string
}

// Identity describes the caller submitting a command. The zero value is an
// anonymous, unauthenticated identity.
type Identity struct {
	Name          string
	Authenticated bool
	Roles         []string
	Claims        []Claim
}

// HasRole reports whether the identity holds the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasClaim reports whether the identity carries a claim with the exact
// matching type and value.
func (id Identity) HasClaim(claimType, claimValue string) bool {
	for _, c := range id.Claims {
		if c.Type == claimType && c.Value == claimValue {
			return true
		}
	}
	return false
}

// Decision represents the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Final marks a decision as terminal: the chain stops evaluating further
	// checks and adopts it. Only allow decisions are ever final.
	Final bool
}

// Allow returns an allow decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// AllowFinal returns an allow decision that terminates the chain.
func AllowFinal() Decision {
	return Decision{Allowed: true, Final: true}
}

// Deny returns a deny decision with the given reason code.
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Check evaluates whether a caller may submit a command. Implementations must
// be safe for concurrent use.
type Check interface {
	// Name identifies the check in logs and trace spans.
	Name() string
	// Evaluate inspects the command's declared markers and the caller's
	// identity and returns a decision.
	Evaluate(ctx context.Context, cmd *metadata.CommandMetadata, id Identity) Decision
}

// Chain runs an ordered list of checks. A command is authorized only if every
// check approves it; an empty chain denies everything.
type Chain struct {
	checks []Check
}

// NewChain creates a chain over the given checks.
func NewChain(checks ...Check) *Chain {
	return &Chain{checks: append([]Check(nil), checks...)}
}

// Checks returns the registered checks in evaluation order.
func (c *Chain) Checks() []Check {
	return c.checks
}

// Authorize evaluates all checks against the command and identity. Every
// check runs even after a failure so that side effects such as logging are
// uniform; the first failure's reason is the one reported. A final allow
// decision stops the chain immediately.
func (c *Chain) Authorize(ctx context.Context, cmd *metadata.CommandMetadata, id Identity) Decision {
	if c == nil || len(c.checks) == 0 {
		return Deny(ReasonDenied)
	}

	result := Allow()
	for _, check := range c.checks {
		decision := check.Evaluate(ctx, cmd, id)
		if decision.Allowed && decision.Final {
			return decision
		}
		if !decision.Allowed && result.Allowed {
			result = Decision{Allowed: false, Reason: decision.Reason}
		}
	}
	return result
}

// AllowAnonymousCheck approves commands marked anonymous-allowed and
// terminates the chain for them. Commands without the marker pass through.
type AllowAnonymousCheck struct{}

// Name implements Check.
func (AllowAnonymousCheck) Name() string { return "allow-anonymous" }

// Evaluate implements Check.
func (AllowAnonymousCheck) Evaluate(_ context.Context, cmd *metadata.CommandMetadata, _ Identity) Decision {
	if cmd != nil && cmd.AllowAnonymous {
		return AllowFinal()
	}
	return Allow()
}

// AuthenticatedIdentityCheck requires an authenticated caller for any command
// that is not marked anonymous-allowed.
type AuthenticatedIdentityCheck struct{}

// Name implements Check.
func (AuthenticatedIdentityCheck) Name() string { return "authenticated-identity" }

// Evaluate implements Check.
func (AuthenticatedIdentityCheck) Evaluate(_ context.Context, cmd *metadata.CommandMetadata, id Identity) Decision {
	if cmd != nil && cmd.AllowAnonymous {
		return Allow()
	}
	if !id.Authenticated {
		return Deny(ReasonDenied)
	}
	return Allow()
}

// RoleMatchCheck requires the caller to be authenticated and to hold at least
// one of the command's required roles. Commands without a role requirement
// pass through.
type RoleMatchCheck struct{}

// Name implements Check.
func (RoleMatchCheck) Name() string { return "role-match" }

// Evaluate implements Check.
func (RoleMatchCheck) Evaluate(_ context.Context, cmd *metadata.CommandMetadata, id Identity) Decision {
	if cmd == nil || len(cmd.RequiredRoles) == 0 {
		return Allow()
	}
	if !id.Authenticated {
		return Deny(ReasonRole)
	}
	for _, role := range cmd.RequiredRoles {
		if id.HasRole(role) {
			return Allow()
		}
	}
	return Deny(ReasonRole)
}

// ClaimMatchCheck requires the caller's identity to carry the command's
// required claim with an exact type and value match. Commands without a claim
// requirement pass through.
type ClaimMatchCheck struct{}

// Name implements Check.
func (ClaimMatchCheck) Name() string { return "claim-match" }

// Evaluate implements Check.
func (ClaimMatchCheck) Evaluate(_ context.Context, cmd *metadata.CommandMetadata, id Identity) Decision {
	if cmd == nil || cmd.RequiredClaim == nil {
		return Allow()
	}
	if !id.Authenticated {
		return Deny(ReasonClaim)
	}
	if id.HasClaim(cmd.RequiredClaim.Type, cmd.RequiredClaim.Value) {
		return Allow()
	}
	return Deny(ReasonClaim)
}

// DefaultChecks returns the built-in chain: anonymous short-circuit first,
// then authentication, role, and claim checks.
func DefaultChecks() []Check {
	return []Check{
		AllowAnonymousCheck{},
		AuthenticatedIdentityCheck{},
		RoleMatchCheck{},
		ClaimMatchCheck{},
	}
}

type contextKey string

// identityContextKey is the context key under which middleware stores the
// caller's identity for the authorization chain.
const identityContextKey contextKey = "cmdbind_identity"

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the caller identity stored by middleware.
// When no identity is present an anonymous identity is returned.
func IdentityFromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	if id, ok := ctx.Value(identityContextKey).(Identity); ok {
		return id
	}
	return Identity{}
}
