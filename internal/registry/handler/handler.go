// Package handler exposes the registry service over HTTP. Handlers stay
// thin: decode, delegate, translate errors. Authorization is decided by the
// service from the caller in the request context, never here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attest/internal/audit"
	"attest/internal/platform/middleware"
	"attest/internal/registry/models"
	"attest/internal/transport/http/shared"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer exposes.
type Service interface {
	CreateIdentity(ctx context.Context, name, email, profileHash string) (*models.Identity, error)
	UpdateProfile(ctx context.Context, principal id.Principal, name, email, profileHash string) (*models.Identity, error)
	VerifyIdentity(ctx context.Context, subject id.Principal, verified bool) (*models.Identity, error)
	GetIdentity(ctx context.Context, principal id.Principal) (*models.Identity, error)

	AddCredential(ctx context.Context, subject id.Principal, credentialType, credentialHash string, expiresAt time.Time) (int, error)
	RevokeCredential(ctx context.Context, subject id.Principal, index int) error
	GetCredential(ctx context.Context, subject id.Principal, index int) (*models.Credential, error)
	ListCredentials(ctx context.Context, subject id.Principal) ([]models.Credential, error)
	GetCredentialsCount(ctx context.Context, subject id.Principal) (int, error)
	IsCredentialValid(ctx context.Context, subject id.Principal, index int) (bool, error)

	AddTrustedIssuer(ctx context.Context, issuer id.Principal) error
	RemoveTrustedIssuer(ctx context.Context, issuer id.Principal) error
	IsTrustedIssuer(ctx context.Context, principal id.Principal) (bool, error)

	GetStats(ctx context.Context) (models.RegistryStats, error)
	GetAuditTrail(ctx context.Context, principal id.Principal) ([]audit.Event, error)
}

// Handler handles identity registry endpoints.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	jwtValidator middleware.PrincipalValidator
}

// New creates a new registry Handler.
func New(registry Service, logger *slog.Logger, jwtValidator middleware.PrincipalValidator) *Handler {
	return &Handler{
		logger:       logger,
		registry:     registry,
		jwtValidator: jwtValidator,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	registryRouter := chi.NewRouter()
	registryRouter.Use(middleware.Recovery(h.logger))
	registryRouter.Use(middleware.RequestID)
	registryRouter.Use(middleware.RequestTime)
	registryRouter.Use(middleware.Logger(h.logger))
	registryRouter.Use(middleware.Timeout(30 * time.Second))
	registryRouter.Use(middleware.ContentTypeJSON)
	registryRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	registryRouter.Post("/identities", h.handleCreateIdentity)
	registryRouter.Get("/identities/{principal}", h.handleGetIdentity)
	registryRouter.Put("/identities/{principal}/profile", h.handleUpdateProfile)
	registryRouter.Post("/identities/{principal}/verification", h.handleVerifyIdentity)
	registryRouter.Get("/identities/{principal}/audit", h.handleAuditTrail)

	registryRouter.Post("/identities/{principal}/credentials", h.handleAddCredential)
	registryRouter.Get("/identities/{principal}/credentials", h.handleListCredentials)
	registryRouter.Get("/identities/{principal}/credentials/{index}", h.handleGetCredential)
	registryRouter.Get("/identities/{principal}/credentials/{index}/validity", h.handleCredentialValidity)
	registryRouter.Post("/identities/{principal}/credentials/{index}/revocation", h.handleRevokeCredential)

	registryRouter.Put("/issuers/{principal}", h.handleAddTrustedIssuer)
	registryRouter.Delete("/issuers/{principal}", h.handleRemoveTrustedIssuer)
	registryRouter.Get("/issuers/{principal}", h.handleGetTrustedIssuer)

	registryRouter.Get("/stats", h.handleStats)

	r.Mount("/registry", registryRouter)
}

type identityRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ProfileHash string `json:"profile_hash"`
}

type identityResponse struct {
	Principal       id.Principal `json:"principal"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	ProfileHash     string       `json:"profile_hash"`
	ReputationScore int          `json:"reputation_score"`
	Verified        bool         `json:"verified"`
	CreatedAt       time.Time    `json:"created_at"`
	LastUpdated     time.Time    `json:"last_updated"`
}

func toIdentityResponse(identity *models.Identity) identityResponse {
	return identityResponse{
		Principal:       identity.Principal,
		Name:            identity.Name,
		Email:           identity.Email,
		ProfileHash:     identity.ProfileHash,
		ReputationScore: identity.ReputationScore,
		Verified:        identity.Verified,
		CreatedAt:       identity.CreatedAt,
		LastUpdated:     identity.LastUpdated,
	}
}

func (h *Handler) handleCreateIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid create identity request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	identity, err := h.registry.CreateIdentity(ctx, req.Name, req.Email, req.ProfileHash)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create identity", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toIdentityResponse(identity))
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	identity, err := h.registry.GetIdentity(ctx, principal)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load identity", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid update profile request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	identity, err := h.registry.UpdateProfile(ctx, principal, req.Name, req.Email, req.ProfileHash)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update profile", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) handleVerifyIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid verification request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	identity, err := h.registry.VerifyIdentity(ctx, principal, req.Verified)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to set verification", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toIdentityResponse(identity))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.registry.GetAuditTrail(ctx, principal)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load audit trail", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

type addCredentialRequest struct {
	CredentialType string    `json:"credential_type"`
	CredentialHash string    `json:"credential_hash"`
	ExpiresAt      time.Time `json:"expires_at,omitzero"`
}

func (h *Handler) handleAddCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req addCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.warn(ctx, "invalid add credential request", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	index, err := h.registry.AddCredential(ctx, subject, req.CredentialType, req.CredentialHash, req.ExpiresAt)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to add credential", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	credentials, err := h.registry.ListCredentials(ctx, subject)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list credentials", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"credentials": credentials})
}

func (h *Handler) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, index, err := pathCredential(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	credential, err := h.registry.GetCredential(ctx, subject, index)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load credential", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, credential)
}

func (h *Handler) handleCredentialValidity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, index, err := pathCredential(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	valid, err := h.registry.IsCredentialValid(ctx, subject, index)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to check credential validity", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *Handler) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, index, err := pathCredential(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.registry.RevokeCredential(ctx, subject, index); err != nil {
		h.writeServiceError(ctx, w, "failed to revoke credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddTrustedIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.registry.AddTrustedIssuer(ctx, issuer); err != nil {
		h.writeServiceError(ctx, w, "failed to add trusted issuer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveTrustedIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.registry.RemoveTrustedIssuer(ctx, issuer); err != nil {
		h.writeServiceError(ctx, w, "failed to remove trusted issuer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetTrustedIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := pathPrincipal(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	trusted, err := h.registry.IsTrustedIssuer(ctx, principal)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to check issuer trust", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"trusted": trusted})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.registry.GetStats(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load stats", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stats)
}

func pathPrincipal(r *http.Request) (id.Principal, error) {
	return id.ParsePrincipal(chi.URLParam(r, "principal"))
}

func pathCredential(r *http.Request) (id.Principal, int, error) {
	subject, err := pathPrincipal(r)
	if err != nil {
		return "", 0, err
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return "", 0, dErrors.New(dErrors.CodeInvalidInput, "credential index must be a non-negative integer")
	}
	return subject, index, nil
}

func (h *Handler) warn(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
}

// writeServiceError logs unexpected failures and passes domain errors through
// to the shared envelope untouched.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.warn(ctx, msg, err)
	}
	shared.WriteError(w, err)
}
