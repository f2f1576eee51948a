package binder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nlstn/go-cmdbind/internal/audit"
	"github.com/nlstn/go-cmdbind/internal/auth"
	"github.com/nlstn/go-cmdbind/internal/decode"
	"github.com/nlstn/go-cmdbind/internal/metadata"
)

type pingCommand struct {
	Message string `json:"message"`
}

func (pingCommand) CommandName() string { return "ping" }

func (pingCommand) AllowAnonymous() bool { return true }

type orderCommand interface{ isOrderCommand() }

type createOrderCommand struct {
	SKU string `json:"sku" cmdbind:"required"`
}

func (createOrderCommand) CommandName() string { return "orders.create" }

func (createOrderCommand) RequiredRoles() []string { return []string{"admin"} }

func (createOrderCommand) isOrderCommand() {}

type vetoedCommand struct {
	Veto bool `json:"veto"`
}

func (vetoedCommand) CommandName() string { return "vetoed" }

func (vetoedCommand) AllowAnonymous() bool { return true }

func (c *vetoedCommand) BeforeAuthorize(context.Context, auth.Identity) error {
	if c.Veto {
		return fmt.Errorf("not today")
	}
	return nil
}

// quotaError mimics an application error carrying its own response status,
// like the public BindError type.
type quotaError struct {
	status int
	reason auth.Reason
}

func (e *quotaError) Error() string { return "quota exceeded" }

func (e *quotaError) BindStatus() (int, auth.Reason) { return e.status, e.reason }

type quotaCommand struct {
	Status int    `json:"status"`
	Reason string `json:"reason"`
	Wrap   bool   `json:"wrap"`
}

func (quotaCommand) CommandName() string { return "quota" }

func (quotaCommand) AllowAnonymous() bool { return true }

func (c *quotaCommand) BeforeAuthorize(context.Context, auth.Identity) error {
	err := &quotaError{status: c.Status, reason: auth.Reason(c.Reason)}
	if c.Wrap {
		return fmt.Errorf("checking quota: %w", err)
	}
	return err
}

var errAfterBind = errors.New("after bind failed")

type afterBindCommand struct {
	Fail bool `json:"fail"`
}

func (afterBindCommand) CommandName() string { return "after-bind" }

func (afterBindCommand) AllowAnonymous() bool { return true }

func (c *afterBindCommand) AfterBind(context.Context) error {
	if c.Fail {
		return errAfterBind
	}
	return nil
}

func newTestBinder(t *testing.T) *Binder {
	t.Helper()

	commands := map[string]*metadata.CommandMetadata{}
	prototypes := []interface{}{
		&pingCommand{}, &createOrderCommand{}, &vetoedCommand{},
		&quotaCommand{}, &afterBindCommand{},
	}
	for _, prototype := range prototypes {
		meta, err := metadata.AnalyzeCommand(prototype)
		if err != nil {
			t.Fatalf("AnalyzeCommand failed: %v", err)
		}
		commands[meta.CommandName] = meta
	}

	decoder := decode.NewDecoder("", 0, func(name string) (*metadata.CommandMetadata, bool) {
		meta, ok := commands[name]
		return meta, ok
	})
	return New(decoder, auth.NewChain(auth.DefaultChecks()...), nil)
}

func bindRequest(t *testing.T, b *Binder, ep Endpoint, body string, id *auth.Identity, authorization string) (*Binding, *httptest.ResponseRecorder, bool) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, ep.Path, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}

	w := httptest.NewRecorder()
	binding, ok := b.Bind(w, req, ep)
	return binding, w, ok
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	return body.Error.Code
}

func TestBindSuccess(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	binding, w, ok := bindRequest(t, b, ep, `{"$command":"ping","message":"hi"}`, nil, "")
	if !ok {
		t.Fatalf("Bind failed: %s", w.Body.String())
	}

	cmd, isPing := binding.Command.(*pingCommand)
	if !isPing {
		t.Fatalf("Command type = %T, want *pingCommand", binding.Command)
	}
	if cmd.Message != "hi" {
		t.Errorf("Message = %q, want hi", cmd.Message)
	}
	if binding.Fingerprint == 0 {
		t.Error("Fingerprint should be set")
	}
	if binding.Identity.Authenticated {
		t.Error("identity should be anonymous")
	}
}

func TestBindDecodeFailures(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"Empty body", "", http.StatusBadRequest, "unauthorized:no-body"},
		{"Whitespace body", "   \n ", http.StatusBadRequest, "unauthorized:no-body"},
		{"Malformed JSON", `{"$command":`, http.StatusBadRequest, "unauthorized:invalid-json"},
		{"Unknown command", `{"$command":"nope"}`, http.StatusBadRequest, "parsing:type-mismatch"},
		{"Missing required field", `{"$command":"orders.create"}`, http.StatusBadRequest, "parsing:missing-field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, w, ok := bindRequest(t, b, ep, tt.body, nil, "")
			if ok {
				t.Fatal("Bind should have failed")
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestBindFamilyMismatch(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{
		Path:   "/orders",
		Family: reflect.TypeOf((*orderCommand)(nil)).Elem(),
	}

	// ping is registered but does not belong to the order family.
	_, w, ok := bindRequest(t, b, ep, `{"$command":"ping"}`, nil, "")
	if ok {
		t.Fatal("Bind should have failed")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != "parsing:type-mismatch" {
		t.Errorf("error code = %q, want parsing:type-mismatch", code)
	}
}

func TestBindAuthorization(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/orders", Family: reflect.TypeOf((*orderCommand)(nil)).Elem()}
	body := `{"$command":"orders.create","sku":"A-1"}`

	t.Run("Anonymous caller gets 401", func(t *testing.T) {
		_, w, ok := bindRequest(t, b, ep, body, nil, "")
		if ok {
			t.Fatal("Bind should have failed")
		}
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("Authenticated without role gets 403", func(t *testing.T) {
		id := auth.Identity{Name: "bob", Authenticated: true, Roles: []string{"viewer"}}
		_, w, ok := bindRequest(t, b, ep, body, &id, "Bearer something")
		if ok {
			t.Fatal("Bind should have failed")
		}
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
		if code := errorCode(t, w); code != "unauthorized:role" {
			t.Errorf("error code = %q, want unauthorized:role", code)
		}
	})

	t.Run("Matching role succeeds", func(t *testing.T) {
		id := auth.Identity{Name: "alice", Authenticated: true, Roles: []string{"admin"}}
		binding, w, ok := bindRequest(t, b, ep, body, &id, "Bearer something")
		if !ok {
			t.Fatalf("Bind failed: %s", w.Body.String())
		}
		if binding.Identity.Name != "alice" {
			t.Errorf("Identity.Name = %q, want alice", binding.Identity.Name)
		}
	})
}

func TestBindEmptyChainDenies(t *testing.T) {
	b := newTestBinder(t)
	b.SetChain(auth.NewChain())
	ep := Endpoint{Path: "/commands"}

	// Secure by default: even the anonymous-allowed ping is denied.
	_, w, ok := bindRequest(t, b, ep, `{"$command":"ping"}`, nil, "")
	if ok {
		t.Fatal("Bind should have failed")
	}
	if code := errorCode(t, w); code != "unauthorized:denied" {
		t.Errorf("error code = %q, want unauthorized:denied", code)
	}
}

func TestBindBeforeAuthorizeHook(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	_, w, ok := bindRequest(t, b, ep, `{"$command":"vetoed","veto":true}`, nil, "")
	if ok {
		t.Fatal("Bind should have failed")
	}
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if code := errorCode(t, w); code != "unauthorized:rejected" {
		t.Errorf("error code = %q, want unauthorized:rejected", code)
	}

	if _, _, ok := bindRequest(t, b, ep, `{"$command":"vetoed","veto":false}`, nil, ""); !ok {
		t.Error("non-vetoing hook should not block the bind")
	}
}

func TestBindBeforeAuthorizeHookStatus(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			"Status and reason are honored",
			`{"$command":"quota","status":429,"reason":"unauthorized:quota"}`,
			http.StatusTooManyRequests, "unauthorized:quota",
		},
		{
			"Wrapped errors are unwrapped",
			`{"$command":"quota","status":403,"reason":"unauthorized:quota","wrap":true}`,
			http.StatusForbidden, "unauthorized:quota",
		},
		{
			"Empty reason falls back to rejected",
			`{"$command":"quota","status":409}`,
			http.StatusConflict, "unauthorized:rejected",
		},
		{
			"Zero status falls back to 422",
			`{"$command":"quota","reason":"unauthorized:quota"}`,
			http.StatusUnprocessableEntity, "unauthorized:quota",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, w, ok := bindRequest(t, b, ep, tt.body, nil, "")
			if ok {
				t.Fatal("Bind should have failed")
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("error code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestBindAfterBindHookErrorIsNotFatal(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	if _, _, ok := bindRequest(t, b, ep, `{"$command":"after-bind","fail":true}`, nil, ""); !ok {
		t.Error("AfterBind errors should be logged, not returned")
	}
}

func TestBindWritesAuditRecords(t *testing.T) {
	b := newTestBinder(t)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	store, err := audit.NewStore(db)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	b.SetAuditStore(store)
	ep := Endpoint{Path: "/commands"}

	bindRequest(t, b, ep, `{"$command":"ping"}`, nil, "")
	bindRequest(t, b, ep, `{"$command":"nope"}`, nil, "")

	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	var allowed, denied int
	for _, record := range records {
		if record.Path != "/commands" {
			t.Errorf("Path = %q, want /commands", record.Path)
		}
		if record.Allowed {
			allowed++
			if record.CommandName != "ping" {
				t.Errorf("allowed CommandName = %q, want ping", record.CommandName)
			}
			if record.PayloadHash == "" {
				t.Error("allowed record should carry a payload hash")
			}
		} else {
			denied++
			if record.Reason != "parsing:type-mismatch" {
				t.Errorf("denied Reason = %q, want parsing:type-mismatch", record.Reason)
			}
		}
	}
	if allowed != 1 || denied != 1 {
		t.Errorf("allowed = %d, denied = %d, want 1 and 1", allowed, denied)
	}
}

func TestBindConcurrentWithConfiguration(t *testing.T) {
	b := newTestBinder(t)
	ep := Endpoint{Path: "/commands"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				req := httptest.NewRequest(http.MethodPost, ep.Path,
					strings.NewReader(`{"$command":"ping"}`))
				b.Bind(httptest.NewRecorder(), req, ep)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			b.SetChain(auth.NewChain(auth.DefaultChecks()...))
			b.SetAuditStore(nil)
			b.SetLogger(slog.Default())
			b.SetObservability(nil)
		}
	}()
	wg.Wait()
}
