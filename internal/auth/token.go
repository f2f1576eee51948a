package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// rolesClaim is the token claim holding the caller's roles.
const rolesClaim = "roles"

// registeredClaims are the standard JWT claims that are not mapped into the
// identity's typed claim list.
var registeredClaims = map[string]struct{}{
	"sub": {}, "iss": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	rolesClaim: {},
}

// TokenParser validates HMAC-signed bearer tokens and maps their claims onto
// a caller identity.
type TokenParser struct {
	secret []byte
	issuer string
}

// TokenOption configures a TokenParser.
type TokenOption func(*TokenParser)

// WithIssuer requires tokens to carry the given issuer.
func WithIssuer(issuer string) TokenOption {
	return func(p *TokenParser) {
		p.issuer = issuer
	}
}

// NewTokenParser creates a parser for tokens signed with the given shared
// secret.
func NewTokenParser(secret []byte, opts ...TokenOption) (*TokenParser, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret cannot be empty")
	}
	p := &TokenParser{secret: secret}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse validates the token string and returns the authenticated identity it
// describes. The subject claim becomes the identity name, the "roles" claim
// becomes the role set, and all remaining non-registered scalar claims become
// typed claims.
func (p *TokenParser) Parse(tokenString string) (Identity, error) {
	claims := jwt.MapClaims{}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	id := Identity{Authenticated: true}
	if subject, err := claims.GetSubject(); err == nil {
		id.Name = subject
	}

	if rawRoles, ok := claims[rolesClaim].([]interface{}); ok {
		for _, rawRole := range rawRoles {
			if role, ok := rawRole.(string); ok && role != "" {
				id.Roles = append(id.Roles, role)
			}
		}
	}

	for claimType, rawValue := range claims {
		if _, registered := registeredClaims[claimType]; registered {
			continue
		}
		switch value := rawValue.(type) {
		case string:
			id.Claims = append(id.Claims, Claim{Type: claimType, Value: value})
		case float64:
			id.Claims = append(id.Claims, Claim{Type: claimType, Value: strconv.FormatFloat(value, 'f', -1, 64)})
		case bool:
			id.Claims = append(id.Claims, Claim{Type: claimType, Value: fmt.Sprintf("%t", value)})
		}
	}

	return id, nil
}

// Middleware returns HTTP middleware that extracts a bearer token from the
// Authorization header and stores the resulting identity in the request
// context. Requests without a valid token proceed with an anonymous identity;
// the authorization chain decides the outcome.
func (p *TokenParser) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			id, err := p.Parse(tokenString)
			if err != nil {
				logger.Debug("Rejected bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
