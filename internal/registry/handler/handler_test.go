package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"attest/internal/registry/service"
	"attest/internal/registry/store"
	id "attest/pkg/domain"
)

// stubValidator treats the bearer token itself as the principal so tests can
// authenticate as anyone without minting JWTs.
type stubValidator struct{}

func (stubValidator) ValidatePrincipal(tokenString string) (id.Principal, error) {
	return id.ParsePrincipal(tokenString)
}

type RegistryHandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	registry, err := service.New("acct:owner",
		store.NewInMemoryIdentityStore(),
		store.NewInMemoryCredentialStore(),
		store.NewInMemoryIssuerStore(),
	)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(registry, logger, stubValidator{}).Register(s.router)
}

func (s *RegistryHandlerSuite) SetupSubTest() {
	s.SetupTest()
}

// do performs a request authenticated as the given principal and decodes the
// JSON body into out when non-nil.
func (s *RegistryHandlerSuite) do(as, method, path string, body, out any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+as)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Code < http.StatusMultipleChoices {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}

func (s *RegistryHandlerSuite) createIdentity(as string) {
	w := s.do(as, http.MethodPost, "/registry/identities", map[string]string{
		"name":  "User " + as,
		"email": as + "@example.com",
	}, nil)
	s.Require().Equal(http.StatusCreated, w.Code)
}

func (s *RegistryHandlerSuite) errorCode(w *httptest.ResponseRecorder) string {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	code, _ := resp["error"].(string)
	return code
}

func (s *RegistryHandlerSuite) TestAuthentication() {
	s.Run("missing bearer token is unauthorized", func() {
		req := httptest.NewRequest(http.MethodGet, "/registry/stats", nil)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("invalid principal in token is unauthorized", func() {
		w := s.do("  ", http.MethodGet, "/registry/stats", nil, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestIdentityEndpoints() {
	s.Run("create then get", func() {
		var created map[string]any
		w := s.do("acct:alice", http.MethodPost, "/registry/identities", map[string]string{
			"name":  "Alice",
			"email": "alice@example.com",
		}, &created)
		s.Require().Equal(http.StatusCreated, w.Code)
		s.Equal("acct:alice", created["principal"])
		s.Equal(float64(100), created["reputation_score"])

		var fetched map[string]any
		w = s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice", nil, &fetched)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal("Alice", fetched["name"])
	})

	s.Run("duplicate create conflicts", func() {
		s.createIdentity("acct:alice")
		w := s.do("acct:alice", http.MethodPost, "/registry/identities", map[string]string{
			"name":  "Alice",
			"email": "alice@example.com",
		}, nil)
		s.Equal(http.StatusConflict, w.Code)
		s.Equal("already_exists", s.errorCode(w))
	})

	s.Run("missing identity is 404", func() {
		w := s.do("acct:alice", http.MethodGet, "/registry/identities/acct:ghost", nil, nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("updating another principal's profile is forbidden", func() {
		s.createIdentity("acct:bob")
		w := s.do("acct:alice", http.MethodPut, "/registry/identities/acct:bob/profile", map[string]string{
			"name":  "Hijacked",
			"email": "x@example.com",
		}, nil)
		s.Equal(http.StatusForbidden, w.Code)
		s.Equal("forbidden", s.errorCode(w))
	})

	s.Run("malformed body is a bad request", func() {
		req := httptest.NewRequest(http.MethodPost, "/registry/identities", bytes.NewReader([]byte("{")))
		req.Header.Set("Authorization", "Bearer acct:alice")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestCredentialEndpoints() {
	s.Run("issue, fetch, revoke", func() {
		s.createIdentity("acct:alice")

		var issued map[string]int
		w := s.do("acct:owner", http.MethodPost, "/registry/identities/acct:alice/credentials", map[string]any{
			"credential_type": "degree",
			"credential_hash": "hash-1",
		}, &issued)
		s.Require().Equal(http.StatusCreated, w.Code)
		s.Equal(0, issued["index"])

		var credential map[string]any
		w = s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice/credentials/0", nil, &credential)
		s.Require().Equal(http.StatusOK, w.Code)
		s.Equal("degree", credential["credential_type"])
		s.Equal(true, credential["valid"])

		w = s.do("acct:owner", http.MethodPost, "/registry/identities/acct:alice/credentials/0/revocation", nil, nil)
		s.Equal(http.StatusNoContent, w.Code)

		var validity map[string]bool
		w = s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice/credentials/0/validity", nil, &validity)
		s.Require().Equal(http.StatusOK, w.Code)
		s.False(validity["valid"])
	})

	s.Run("untrusted caller cannot issue", func() {
		s.createIdentity("acct:alice")
		w := s.do("acct:mallory", http.MethodPost, "/registry/identities/acct:alice/credentials", map[string]any{
			"credential_type": "degree",
			"credential_hash": "hash-1",
		}, nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("out-of-range index is 404", func() {
		s.createIdentity("acct:alice")
		w := s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice/credentials/5", nil, nil)
		s.Equal(http.StatusNotFound, w.Code)
		s.Equal("index_out_of_range", s.errorCode(w))
	})

	s.Run("non-numeric index is a bad request", func() {
		w := s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice/credentials/abc", nil, nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestIssuerEndpoints() {
	s.Run("owner manages the issuer set", func() {
		w := s.do("acct:owner", http.MethodPut, "/registry/issuers/acct:university", nil, nil)
		s.Equal(http.StatusNoContent, w.Code)

		var trusted map[string]bool
		w = s.do("acct:bob", http.MethodGet, "/registry/issuers/acct:university", nil, &trusted)
		s.Require().Equal(http.StatusOK, w.Code)
		s.True(trusted["trusted"])

		w = s.do("acct:owner", http.MethodDelete, "/registry/issuers/acct:university", nil, nil)
		s.Equal(http.StatusNoContent, w.Code)
	})

	s.Run("non-owner is forbidden", func() {
		w := s.do("acct:alice", http.MethodPut, "/registry/issuers/acct:university", nil, nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("owner cannot be removed", func() {
		w := s.do("acct:owner", http.MethodDelete, "/registry/issuers/acct:owner", nil, nil)
		s.Equal(http.StatusForbidden, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestStatsAndAudit() {
	s.createIdentity("acct:alice")
	_ = s.do("acct:owner", http.MethodPost, "/registry/identities/acct:alice/credentials", map[string]any{
		"credential_type": "degree",
		"credential_hash": "hash-1",
		"expires_at":      time.Now().Add(time.Hour).Format(time.RFC3339),
	}, nil)

	var stats map[string]int
	w := s.do("acct:bob", http.MethodGet, "/registry/stats", nil, &stats)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(1, stats["total_identities"])
	s.Equal(1, stats["total_credentials"])

	var trail map[string][]map[string]any
	w = s.do("acct:bob", http.MethodGet, "/registry/identities/acct:alice/audit", nil, &trail)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(trail["events"], 3)
}
