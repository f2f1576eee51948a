package cmdbind

import "context"

// Commands can opt into lifecycle hooks by implementing the interfaces in
// this file on their pointer type. The binder discovers them structurally;
// a command implements only the hooks it needs.

// BeforeAuthorizer is called after a command is decoded and before the
// authorization chain runs. Returning an error rejects the command with
// HTTP 422 and reason "unauthorized:rejected". The hook sees the decoded
// field values, so it is the place for payload-dependent vetoes.
type BeforeAuthorizer interface {
	BeforeAuthorize(ctx context.Context, id Identity) error
}

// AfterBinder is called once a command has been decoded and authorized,
// immediately before it is handed to the endpoint handler. Errors are
// logged but do not fail the bind.
type AfterBinder interface {
	AfterBind(ctx context.Context) error
}

// AnonymousCommand marks a command as callable without authentication.
// Implement it by returning true from AllowAnonymous.
type AnonymousCommand interface {
	Command
	AllowAnonymous() bool
}

// RoleRestrictedCommand declares the roles allowed to issue a command. The
// caller must hold at least one of them.
type RoleRestrictedCommand interface {
	Command
	RequiredRoles() []string
}

// ClaimRestrictedCommand declares a claim the caller must hold, as a
// claim type and exact expected value.
type ClaimRestrictedCommand interface {
	Command
	RequiredClaim() (claimType, claimValue string)
}
