package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stefabooks/internal/access"
	"stefabooks/internal/platform/crypto"
)

const testSecret = "test-secret"

type fakeLoader map[string]access.Subject

func (f fakeLoader) LoadSubject(_ context.Context, userID string) (access.Subject, error) {
	s, ok := f[userID]
	if !ok {
		return access.Subject{}, ErrUnknownSubject
	}
	return s, nil
}

type failingLoader struct{}

func (failingLoader) LoadSubject(context.Context, string) (access.Subject, error) {
	return access.Subject{}, errors.New("db down")
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := crypto.GenerateToken(testSecret, userID, "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	loader := fakeLoader{
		"u1": {UserID: "u1", Role: access.RoleUser, Status: access.StatusActive},
	}
	var seen access.Subject
	handler := AuthMiddleware(testSecret, loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SubjectFrom(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", bearer(t, "ghost"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token loads subject", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", bearer(t, "u1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, access.RoleUser, seen.Role)
		assert.Equal(t, "u1", seen.UserID)
	})
}

func TestAuthMiddleware_LoaderFailure(t *testing.T) {
	handler := AuthMiddleware(testSecret, failingLoader{})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireCapability(t *testing.T) {
	handler := RequireCapability(access.CapRentBooks)(okHandler())

	run := func(s access.Subject) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/rentals", nil)
		req = req.WithContext(ContextWithSubject(req.Context(), s))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, run(access.Subject{UserID: "u1", Role: access.RoleUser, Status: access.StatusActive}).Code)

	w := run(access.Subject{UserID: "u1", Role: access.RoleUser, Status: access.StatusInactive})
	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "account is inactive", resp.Error.Message)
}

func TestInternalSecretMiddleware(t *testing.T) {
	handler := InternalSecretMiddleware("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/expire", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareChain_AccessLogCarriesUserID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	loader := fakeLoader{"u1": {UserID: "u1", Role: access.RoleUser, Status: access.StatusActive}}

	handler := Chain(okHandler(),
		RequestIDMiddleware(base),
		AccessLogMiddleware,
		RecoveryMiddleware,
		AuthMiddleware(testSecret, loader),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-Id"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "access", line["msg"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "req-42", line["request_id"])
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestIDMiddleware(base), AccessLogMiddleware, RecoveryMiddleware)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "panic recovered")
}
