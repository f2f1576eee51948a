package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("token-test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestNewTokenParserRequiresSecret(t *testing.T) {
	if _, err := NewTokenParser(nil); err == nil {
		t.Error("NewTokenParser should reject an empty secret")
	}
}

func TestTokenParserParse(t *testing.T) {
	parser, err := NewTokenParser(testSecret)
	if err != nil {
		t.Fatalf("NewTokenParser failed: %v", err)
	}

	tokenString := signToken(t, jwt.MapClaims{
		"sub":   "alice",
		"roles": []interface{}{"admin", "sales"},
		"scope": "orders.cancel",
		"tier":  float64(2),
		"beta":  true,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	id, err := parser.Parse(tokenString)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !id.Authenticated {
		t.Error("identity should be authenticated")
	}
	if id.Name != "alice" {
		t.Errorf("Name = %q, want alice", id.Name)
	}
	if !id.HasRole("admin") || !id.HasRole("sales") {
		t.Errorf("Roles = %v, want admin and sales", id.Roles)
	}
	if !id.HasClaim("scope", "orders.cancel") {
		t.Errorf("Claims = %v, want scope=orders.cancel", id.Claims)
	}
	if !id.HasClaim("tier", "2") {
		t.Errorf("Claims = %v, want tier=2", id.Claims)
	}
	if !id.HasClaim("beta", "true") {
		t.Errorf("Claims = %v, want beta=true", id.Claims)
	}
}

func TestTokenParserRejectsInvalidTokens(t *testing.T) {
	parser, err := NewTokenParser(testSecret)
	if err != nil {
		t.Fatalf("NewTokenParser failed: %v", err)
	}

	otherSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "mallory"})
	forged, err := otherSecret.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"Garbage", "not-a-token"},
		{"Wrong secret", forged},
		{"Expired", signToken(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.Parse(tt.token); err == nil {
				t.Error("Parse should have failed")
			}
		})
	}
}

func TestTokenParserIssuer(t *testing.T) {
	parser, err := NewTokenParser(testSecret, WithIssuer("cmdbind-test"))
	if err != nil {
		t.Fatalf("NewTokenParser failed: %v", err)
	}

	good := signToken(t, jwt.MapClaims{"sub": "alice", "iss": "cmdbind-test"})
	if _, err := parser.Parse(good); err != nil {
		t.Errorf("Parse with matching issuer failed: %v", err)
	}

	bad := signToken(t, jwt.MapClaims{"sub": "alice", "iss": "someone-else"})
	if _, err := parser.Parse(bad); err == nil {
		t.Error("Parse should reject a mismatched issuer")
	}
}

func TestTokenMiddleware(t *testing.T) {
	parser, err := NewTokenParser(testSecret)
	if err != nil {
		t.Fatalf("NewTokenParser failed: %v", err)
	}

	var captured Identity
	handler := parser.Middleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name          string
		authorization string
		wantAuth      bool
		wantName      string
	}{
		{"No header", "", false, ""},
		{"Malformed header", "Basic abc", false, ""},
		{"Invalid token", "Bearer garbage", false, ""},
		{"Valid token", "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice"}), true, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured = Identity{}
			req := httptest.NewRequest(http.MethodPost, "/commands", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if captured.Authenticated != tt.wantAuth {
				t.Errorf("Authenticated = %v, want %v", captured.Authenticated, tt.wantAuth)
			}
			if captured.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", captured.Name, tt.wantName)
			}
		})
	}
}
