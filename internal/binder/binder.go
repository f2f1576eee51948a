// Package binder orchestrates the bind pipeline: read the request body,
// deserialize it into a typed command, verify the command belongs to the
// endpoint's family, authorize the caller, and emit the result or a
// structured error.
package binder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/nlstn/go-cmdbind/internal/audit"
	"github.com/nlstn/go-cmdbind/internal/auth"
	"github.com/nlstn/go-cmdbind/internal/decode"
	"github.com/nlstn/go-cmdbind/internal/metadata"
	"github.com/nlstn/go-cmdbind/internal/observability"
	"github.com/nlstn/go-cmdbind/internal/response"
)

// Endpoint describes one registered command endpoint.
type Endpoint struct {
	// Path is the URL path the endpoint is mounted on.
	Path string
	// Family is the interface type every accepted command must satisfy.
	// A nil family accepts any registered command.
	Family reflect.Type
}

// Binding is the successful outcome of a bind attempt.
type Binding struct {
	// Command is a pointer to the decoded command struct.
	Command interface{}
	// Metadata is the command type's registration metadata.
	Metadata *metadata.CommandMetadata
	// Identity is the caller identity the command was authorized against.
	Identity auth.Identity
	// Fingerprint is the payload's xxhash fingerprint.
	Fingerprint uint64
	// PayloadSize is the trimmed payload size in bytes.
	PayloadSize int
}

// Optional lifecycle hooks commands can implement. They are detected via
// interface assertion on the decoded command pointer.
type (
	beforeAuthorizeHook interface {
		BeforeAuthorize(ctx context.Context, id auth.Identity) error
	}

	afterBindHook interface {
		AfterBind(ctx context.Context) error
	}
)

// statusReporter is implemented by hook errors that carry their own response
// status and reason, such as the root package's BindError.
type statusReporter interface {
	error
	BindStatus() (statusCode int, reason auth.Reason)
}

// Binder runs the bind pipeline for registered endpoints.
type Binder struct {
	decoder *decode.Decoder

	// mu guards the configurable fields below so setters may be called while
	// requests are in flight. Each request works on a snapshot.
	mu    sync.RWMutex
	chain *auth.Chain
	// execChain is the chain actually evaluated; when tracing is enabled it
	// wraps every check in a span-emitting decorator.
	execChain *auth.Chain
	store     *audit.Store
	obs       *observability.Config
	logger    *slog.Logger
}

// pipeline is one request's consistent view of the binder configuration.
type pipeline struct {
	chain  *auth.Chain
	store  *audit.Store
	obs    *observability.Config
	logger *slog.Logger
}

// New creates a binder over the given decoder and authorization chain.
func New(decoder *decode.Decoder, chain *auth.Chain, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Binder{
		decoder: decoder,
		chain:   chain,
		logger:  logger,
	}
	b.rebuildChain()
	return b
}

// SetChain replaces the authorization chain.
func (b *Binder) SetChain(chain *auth.Chain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chain = chain
	b.rebuildChain()
}

// Chain returns the current authorization chain.
func (b *Binder) Chain() *auth.Chain {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chain
}

// SetAuditStore configures an audit store. Pass nil to disable auditing.
func (b *Binder) SetAuditStore(store *audit.Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
}

// AuditStore returns the configured audit store, nil when auditing is
// disabled.
func (b *Binder) AuditStore() *audit.Store {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store
}

// SetObservability configures tracing and metrics.
func (b *Binder) SetObservability(cfg *observability.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.obs = cfg
	b.rebuildChain()
}

// SetLogger replaces the binder's logger.
func (b *Binder) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

func (b *Binder) snapshot() pipeline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pipeline{
		chain:  b.execChain,
		store:  b.store,
		obs:    b.obs,
		logger: b.logger,
	}
}

// tracedCheck wraps an authorization check in a trace span.
type tracedCheck struct {
	inner  auth.Check
	tracer *observability.Tracer
}

// Name implements auth.Check.
func (c tracedCheck) Name() string { return c.inner.Name() }

// Evaluate implements auth.Check.
func (c tracedCheck) Evaluate(ctx context.Context, cmd *metadata.CommandMetadata, id auth.Identity) auth.Decision {
	ctx, span := c.tracer.StartCheck(ctx, c.inner.Name())
	defer span.End()

	decision := c.inner.Evaluate(ctx, cmd, id)
	c.tracer.SetDecision(ctx, decision.Allowed, string(decision.Reason))
	return decision
}

// rebuildChain recomputes execChain. Callers must hold mu, except during
// construction before the binder is shared.
func (b *Binder) rebuildChain() {
	if b.chain == nil {
		b.execChain = nil
		return
	}
	if b.obs == nil || b.obs.TracerProvider == nil {
		b.execChain = b.chain
		return
	}

	tracer := b.obs.Tracer()
	checks := b.chain.Checks()
	wrapped := make([]auth.Check, 0, len(checks))
	for _, check := range checks {
		wrapped = append(wrapped, tracedCheck{inner: check, tracer: tracer})
	}
	b.execChain = auth.NewChain(wrapped...)
}

// Bind runs the pipeline for one request. On success it returns the binding
// and true. On failure it writes a structured error response and returns
// false.
func (b *Binder) Bind(w http.ResponseWriter, r *http.Request, ep Endpoint) (*Binding, bool) {
	start := time.Now()
	p := b.snapshot()

	ctx, span := p.obs.Tracer().StartBind(r.Context(), ep.Path)
	defer span.End()

	timing := observability.StartServerTiming(ctx, "bind")
	defer timing.Stop()

	result, err := b.decode(ctx, p, r)
	if err != nil {
		statusCode, reason := classifyDecodeError(err)
		b.fail(ctx, p, w, r, ep, failure{
			statusCode: statusCode,
			reason:     reason,
			message:    http.StatusText(statusCode),
			details:    err.Error(),
		})
		return nil, false
	}

	commandName := result.Metadata.CommandName
	span.SetAttributes(observability.CommandAttr(commandName))
	p.obs.Metrics().RecordPayloadSize(ctx, commandName, result.PayloadSize)

	if !decode.ImplementsFamily(result.Metadata, ep.Family) {
		b.fail(ctx, p, w, r, ep, failure{
			statusCode:  http.StatusBadRequest,
			reason:      auth.ReasonTypeMismatch,
			message:     http.StatusText(http.StatusBadRequest),
			details:     "command '" + commandName + "' is not accepted by this endpoint",
			commandName: commandName,
			fingerprint: result.Fingerprint,
		})
		return nil, false
	}

	identity := auth.IdentityFromContext(r.Context())

	if hook, ok := result.Command.(beforeAuthorizeHook); ok {
		if hookErr := hook.BeforeAuthorize(ctx, identity); hookErr != nil {
			statusCode, reason := classifyHookError(hookErr)
			b.fail(ctx, p, w, r, ep, failure{
				statusCode:  statusCode,
				reason:      reason,
				message:     http.StatusText(statusCode),
				details:     hookErr.Error(),
				commandName: commandName,
				fingerprint: result.Fingerprint,
				identity:    identity,
			})
			return nil, false
		}
	}

	decision := b.authorize(ctx, p, result.Metadata, identity)
	p.obs.Metrics().RecordDecision(ctx, commandName, decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		statusCode := http.StatusForbidden
		if r.Header.Get("Authorization") == "" {
			statusCode = http.StatusUnauthorized
		}
		b.fail(ctx, p, w, r, ep, failure{
			statusCode:  statusCode,
			reason:      decision.Reason,
			message:     http.StatusText(statusCode),
			commandName: commandName,
			fingerprint: result.Fingerprint,
			identity:    identity,
		})
		return nil, false
	}

	if hook, ok := result.Command.(afterBindHook); ok {
		if hookErr := hook.AfterBind(ctx); hookErr != nil {
			// Post-bind hooks cannot veto the command anymore.
			observability.LoggerWithTrace(ctx, p.logger).Warn("AfterBind hook failed",
				observability.LogFieldCommand, commandName,
				observability.LogFieldError, hookErr)
		}
	}

	b.recordAudit(ctx, p, r, ep, audit.Record{
		CommandName:  commandName,
		Allowed:      true,
		PayloadHash:  audit.FormatFingerprint(result.Fingerprint),
		IdentityName: identity.Name,
	})
	p.obs.Metrics().RecordBind(ctx, ep.Path, commandName, http.StatusOK, time.Since(start))
	observability.FlushDBTiming(ctx)

	observability.LoggerWithTrace(ctx, p.logger).Debug("Bound command",
		observability.LogFieldCommand, commandName,
		observability.LogFieldEndpoint, ep.Path,
		observability.LogFieldDuration, time.Since(start).Milliseconds())

	return &Binding{
		Command:     result.Command,
		Metadata:    result.Metadata,
		Identity:    identity,
		Fingerprint: result.Fingerprint,
		PayloadSize: result.PayloadSize,
	}, true
}

func (b *Binder) decode(ctx context.Context, p pipeline, r *http.Request) (*decode.Result, error) {
	ctx, span := p.obs.Tracer().StartDecode(ctx)
	defer span.End()

	timing := observability.StartServerTiming(ctx, "decode")
	defer timing.Stop()

	result, err := b.decoder.Decode(r.Body)
	if err != nil {
		p.obs.Tracer().RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		observability.CommandAttr(result.Metadata.CommandName),
		observability.PayloadSizeAttr(result.PayloadSize),
	)
	return result, nil
}

func (b *Binder) authorize(ctx context.Context, p pipeline, cmd *metadata.CommandMetadata, id auth.Identity) auth.Decision {
	ctx, span := p.obs.Tracer().StartAuthorize(ctx, cmd.CommandName, id.Authenticated)
	defer span.End()

	timing := observability.StartServerTiming(ctx, "authorize")
	defer timing.Stop()

	decision := p.chain.Authorize(ctx, cmd, id)
	p.obs.Tracer().SetDecision(ctx, decision.Allowed, string(decision.Reason))
	return decision
}

// failure collects everything needed to report and audit a failed bind.
type failure struct {
	statusCode  int
	reason      auth.Reason
	message     string
	details     string
	commandName string
	fingerprint uint64
	identity    auth.Identity
}

func (b *Binder) fail(ctx context.Context, p pipeline, w http.ResponseWriter, r *http.Request, ep Endpoint, f failure) {
	p.obs.Tracer().SetHTTPStatus(ctx, f.statusCode)
	p.obs.Metrics().RecordError(ctx, ep.Path, f.commandName, string(f.reason))

	b.recordAudit(ctx, p, r, ep, audit.Record{
		CommandName:  f.commandName,
		Allowed:      false,
		Reason:       string(f.reason),
		PayloadHash:  audit.FormatFingerprint(f.fingerprint),
		IdentityName: f.identity.Name,
	})
	observability.FlushDBTiming(ctx)

	observability.LoggerWithTrace(ctx, p.logger).Info("Rejected command",
		observability.LogFieldEndpoint, ep.Path,
		observability.LogFieldCommand, f.commandName,
		observability.LogFieldReason, string(f.reason),
		"status", f.statusCode)

	if err := response.WriteError(w, f.statusCode, string(f.reason), f.message, f.details); err != nil {
		observability.LoggerWithTrace(ctx, p.logger).Error("Error writing bind error response",
			observability.LogFieldError, err)
	}
}

func (b *Binder) recordAudit(ctx context.Context, p pipeline, r *http.Request, ep Endpoint, record audit.Record) {
	if p.store == nil {
		return
	}

	ctx, span := p.obs.Tracer().StartAuditWrite(ctx, record.CommandName)
	defer span.End()

	record.Path = ep.Path
	record.RemoteAddr = r.RemoteAddr

	start := time.Now()
	if err := p.store.Write(ctx, record); err != nil {
		// Audit failures must not break request handling.
		observability.LoggerWithTrace(ctx, p.logger).Error("Failed to write audit record",
			observability.LogFieldCommand, record.CommandName,
			observability.LogFieldError, err)
		return
	}
	p.obs.Metrics().RecordAuditWrite(ctx, time.Since(start))
}

func classifyDecodeError(err error) (int, auth.Reason) {
	switch {
	case errors.Is(err, decode.ErrEmptyBody):
		return http.StatusBadRequest, auth.ReasonNoBody
	case errors.Is(err, decode.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, auth.ReasonBodyTooLarge
	case errors.Is(err, decode.ErrMissingField):
		return http.StatusBadRequest, auth.ReasonMissingField
	case errors.Is(err, decode.ErrTypeMismatch):
		return http.StatusBadRequest, auth.ReasonTypeMismatch
	default:
		return http.StatusBadRequest, auth.ReasonInvalidJSON
	}
}

// classifyHookError maps a BeforeAuthorize error to a response status and
// reason. Errors implementing statusReporter control both; everything else
// is reported as 422 with the rejected reason.
func classifyHookError(err error) (int, auth.Reason) {
	statusCode := http.StatusUnprocessableEntity
	reason := auth.ReasonRejected

	var reporter statusReporter
	if errors.As(err, &reporter) {
		sc, rs := reporter.BindStatus()
		if sc != 0 {
			statusCode = sc
		}
		if rs != "" {
			reason = rs
		}
	}
	return statusCode, reason
}
