package cmdbind

// Package cmdbind binds JSON request bodies to typed commands and runs a
// declarative authorization chain before the command reaches application code.
// Commands are plain Go structs that declare their name and their access
// requirements through small optional interfaces.

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"sync"

	"gorm.io/gorm"

	"github.com/nlstn/go-cmdbind/internal/audit"
	"github.com/nlstn/go-cmdbind/internal/auth"
	"github.com/nlstn/go-cmdbind/internal/binder"
	"github.com/nlstn/go-cmdbind/internal/decode"
	"github.com/nlstn/go-cmdbind/internal/metadata"
	"github.com/nlstn/go-cmdbind/internal/observability"
)

// Command is the minimal contract a registered command type must satisfy.
// The name it returns is matched against the discriminator property of
// incoming request bodies.
type Command interface {
	CommandName() string
}

// Binding is the result of a successful bind: the decoded command, its
// metadata, and the identity the authorization chain evaluated.
type Binding = binder.Binding

// Handler processes a successfully bound command for an endpoint.
type Handler func(w http.ResponseWriter, r *http.Request, b *Binding)

// Config controls optional service behaviours.
type Config struct {
	// Discriminator is the JSON property naming the command.
	// Defaults to "$command".
	Discriminator string
	// MaxBodySize caps the request body in bytes. Defaults to 1 MiB.
	MaxBodySize int64
}

type endpointEntry struct {
	path    string
	family  reflect.Type
	handler Handler
}

// Service dispatches command requests to registered endpoints.
type Service struct {
	// commands holds registered command metadata keyed by command name
	commands map[string]*metadata.CommandMetadata
	// endpoints holds registered endpoints keyed by exact request path
	endpoints map[string]*endpointEntry
	// decoder deserializes command payloads, shared with the binder
	decoder *decode.Decoder
	// binder runs the decode and authorization pipeline
	binder *binder.Binder
	// obs carries the observability configuration, nil when disabled
	obs *observability.Config
	// auditDB holds the audit database handle, nil when auditing is disabled
	auditDB *gorm.DB
	// logger is used for structured logging throughout the service
	logger *slog.Logger

	mu sync.RWMutex
}

// NewService creates a command binding service with default configuration.
func NewService() *Service {
	service, err := NewServiceWithConfig(Config{})
	if err != nil {
		panic(err)
	}
	return service
}

// NewServiceWithConfig creates a command binding service with additional
// configuration.
func NewServiceWithConfig(cfg Config) (*Service, error) {
	if cfg.MaxBodySize < 0 {
		return nil, fmt.Errorf("cmdbind: max body size must not be negative")
	}

	logger := slog.Default()
	s := &Service{
		commands:  make(map[string]*metadata.CommandMetadata),
		endpoints: make(map[string]*endpointEntry),
		logger:    logger,
	}

	s.decoder = decode.NewDecoder(cfg.Discriminator, cfg.MaxBodySize, s.lookupCommand)
	s.binder = binder.New(s.decoder, auth.NewChain(auth.DefaultChecks()...), logger)
	return s, nil
}

// DecodeCommand decodes a command payload outside the HTTP pipeline, for
// example from a message queue consumer. No authorization runs; the caller
// decides what the decoded command may do. Use MapErrorToHTTPStatus to turn
// the returned error into a status code when reporting the result over HTTP.
func (s *Service) DecodeCommand(body io.Reader) (Command, error) {
	result, err := s.decoder.Decode(body)
	if err != nil {
		return nil, err
	}
	return result.Command.(Command), nil
}

func (s *Service) lookupCommand(name string) (*metadata.CommandMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.commands[name]
	return meta, ok
}

// RegisterCommand registers a command type from a prototype value. The
// prototype is only inspected, never retained; each request decodes into a
// fresh instance.
func (s *Service) RegisterCommand(prototype Command) error {
	meta, err := metadata.AnalyzeCommand(prototype)
	if err != nil {
		return fmt.Errorf("failed to register command: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.commands[meta.CommandName]; exists {
		return fmt.Errorf("command %q is already registered", meta.CommandName)
	}
	s.commands[meta.CommandName] = meta
	s.logger.Debug("Registered command",
		"command", meta.CommandName,
		"anonymous", meta.AllowAnonymous,
		"roles", meta.RequiredRoles)
	return nil
}

// MustRegisterCommand registers a command type and panics on error. Intended
// for service setup where a registration failure is a programming mistake.
func (s *Service) MustRegisterCommand(prototype Command) {
	if err := s.RegisterCommand(prototype); err != nil {
		panic(err)
	}
}

// EndpointOption configures a registered endpoint.
type EndpointOption func(*endpointEntry)

// WithFamily restricts an endpoint to commands implementing the given
// interface type. Commands outside the family are rejected as a type
// mismatch even when they are registered with the service.
func WithFamily(family reflect.Type) EndpointOption {
	return func(e *endpointEntry) {
		e.family = family
	}
}

// FamilyOf returns the reflect.Type of an interface type T, for use with
// WithFamily:
//
//	service.RegisterEndpoint("/orders", handler, cmdbind.WithFamily(cmdbind.FamilyOf[OrderCommand]()))
func FamilyOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// RegisterEndpoint registers a command endpoint at the given path. The
// handler may be nil, in which case a default acknowledgement response is
// written for accepted commands.
func (s *Service) RegisterEndpoint(path string, handler Handler, opts ...EndpointOption) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("endpoint path %q must start with '/'", path)
	}

	entry := &endpointEntry{path: path, handler: handler}
	for _, opt := range opts {
		opt(entry)
	}
	if entry.family != nil && entry.family.Kind() != reflect.Interface {
		return fmt.Errorf("endpoint family for %q must be an interface type, got %s", path, entry.family.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[path]; exists {
		return fmt.Errorf("endpoint %q is already registered", path)
	}
	s.endpoints[path] = entry
	return nil
}

// SetChecks replaces the authorization chain with the given checks. An empty
// chain denies every command.
func (s *Service) SetChecks(checks ...Check) {
	s.binder.SetChain(auth.NewChain(checks...))
}

// AddCheck appends a check to the current authorization chain.
func (s *Service) AddCheck(check Check) {
	s.binder.SetChain(auth.NewChain(append(s.binder.Chain().Checks(), check)...))
}

// SetLogger sets the logger used by the service and its internal components.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
	s.binder.SetLogger(logger)
}

// EnableAudit persists an audit record for every bind attempt to the given
// database. The audit table is migrated on first use.
func (s *Service) EnableAudit(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cmdbind: database handle is required")
	}
	store, err := audit.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit store: %w", err)
	}
	s.auditDB = db
	s.binder.SetAuditStore(store)
	if s.obs != nil {
		if err := observability.RegisterGORMCallbacks(db, s.obs); err != nil {
			return fmt.Errorf("failed to register audit tracing callbacks: %w", err)
		}
	}
	if s.obs.ServerTimingEnabled() {
		if err := observability.RegisterServerTimingCallbacks(db); err != nil {
			return fmt.Errorf("failed to register audit timing callbacks: %w", err)
		}
	}
	return nil
}

// EnableObservability configures OpenTelemetry tracing and metrics for the
// service. Call before serving requests.
func (s *Service) EnableObservability(opts ...ObservabilityOption) error {
	cfg := observability.NewConfig(opts...)
	if err := cfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	s.obs = cfg
	s.binder.SetObservability(cfg)
	if s.auditDB != nil {
		if err := observability.RegisterGORMCallbacks(s.auditDB, cfg); err != nil {
			return fmt.Errorf("failed to register audit tracing callbacks: %w", err)
		}
		if cfg.ServerTimingEnabled() {
			if err := observability.RegisterServerTimingCallbacks(s.auditDB); err != nil {
				return fmt.Errorf("failed to register audit timing callbacks: %w", err)
			}
		}
	}
	return nil
}
