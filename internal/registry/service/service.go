// Package service implements the registry facade: the single entry point for
// identity, credential, and trusted-issuer mutations. It owns every write path
// into the stores so authorization and invariants cannot be bypassed, and it
// emits the audit trail for each mutation.
package service

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"attest/internal/audit"
	"attest/internal/registry/cache"
	regmetrics "attest/internal/registry/metrics"
	"attest/internal/registry/store"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// AuditPublisher records the append-only audit trail. Every mutation appends
// at least one event; reputation-affecting mutations append a
// reputation_updated event as well.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	ListByPrincipal(ctx context.Context, principal id.Principal) ([]audit.Event, error)
}

// Service is the registry facade. The underlying substrate serializes
// transactions globally; reproduced here as per-principal write locks plus an
// independent lock for the issuer set, so each operation's read-modify-write
// is atomic and writes to one principal's state are linearizable.
type Service struct {
	owner       id.Principal
	identities  store.IdentityStore
	credentials store.CredentialStore
	issuers     store.IssuerStore

	cache          *cache.IdentityCache
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *regmetrics.Metrics
	tracer         trace.Tracer

	locks    principalLocks
	issuerMu sync.Mutex
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *regmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIdentityCache enables the read-through identity cache on the query path.
func WithIdentityCache(c *cache.IdentityCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// New constructs the facade and seeds the owner into the trusted issuer set.
// The owner is a member from initialization; owner status itself is tracked
// independently of issuer trust and can never be revoked.
func New(owner id.Principal, identities store.IdentityStore, credentials store.CredentialStore, issuers store.IssuerStore, opts ...Option) (*Service, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "registry owner cannot be empty")
	}
	s := &Service{
		owner:       owner,
		identities:  identities,
		credentials: credentials,
		issuers:     issuers,
		tracer:      otel.Tracer("attest/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auditPublisher == nil {
		s.auditPublisher = audit.NewPublisher(audit.NewInMemoryStore())
	}
	if err := issuers.Add(context.Background(), owner); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed owner as trusted issuer")
	}
	return s, nil
}

// Owner returns the registry's owning principal.
func (s *Service) Owner() id.Principal {
	return s.owner
}

// caller extracts the authenticated caller principal from the context.
func (s *Service) caller(ctx context.Context) (id.Principal, error) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller principal not set")
	}
	return caller, nil
}

// requireTrustedIssuer authorizes verification, issuance, and revocation.
func (s *Service) requireTrustedIssuer(ctx context.Context) (id.Principal, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return "", err
	}
	trusted, err := s.issuers.IsTrusted(ctx, caller)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check issuer trust")
	}
	if !trusted {
		return "", dErrors.New(dErrors.CodeForbidden, "caller is not a trusted issuer")
	}
	return caller, nil
}

// requireOwner authorizes issuer-set management.
func (s *Service) requireOwner(ctx context.Context) (id.Principal, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return "", err
	}
	if caller != s.owner {
		return "", dErrors.New(dErrors.CodeForbidden, "caller is not the registry owner")
	}
	return caller, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit event")
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, action audit.Action, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(action), "log_type", "audit")
	s.logger.InfoContext(ctx, string(action), args...)
}

// principalLocks hands out one mutex per principal so writes to different
// principals never contend while writes to the same one serialize.
type principalLocks struct {
	mu    sync.Mutex
	locks map[id.Principal]*sync.Mutex
}

// acquire locks the principal's mutex and returns the unlock function.
func (l *principalLocks) acquire(principal id.Principal) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[id.Principal]*sync.Mutex)
	}
	m, ok := l.locks[principal]
	if !ok {
		m = &sync.Mutex{}
		l.locks[principal] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
