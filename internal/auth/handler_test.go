package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracker-api/internal/authz"
)

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestLoginHandlerReportsAttemptsRemaining(t *testing.T) {
	service, _, user := newTestService(t)
	handler := NewHandler(service)

	body := `{"email":"` + user.Email + `","password":"wrong-password"}`

	rec := postJSON(t, handler.Login, "/auth/login", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	payload := decodeBody(t, rec)
	require.Equal(t, "invalid credentials", payload["error"])
	require.Equal(t, float64(2), payload["attempts_remaining"])
}

func TestLoginHandlerOmitsHintForUnknownEmail(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service)

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"nobody@example.com","password":"whatever"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	payload := decodeBody(t, rec)
	require.NotContains(t, payload, "attempts_remaining")
}

func TestLoginHandlerLockedAccount(t *testing.T) {
	service, _, user := newTestService(t)
	handler := NewHandler(service)

	ctx := context.Background()
	for i := 0; i < LockThreshold; i++ {
		_, _ = service.Authenticate(ctx, user.Email, "wrong-password")
	}

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"`+user.Email+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusLocked, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	payload := decodeBody(t, rec)
	require.Equal(t, "account temporarily locked", payload["error"])
	require.GreaterOrEqual(t, payload["minutes_remaining"], float64(1))
}

func TestLoginHandlerSuccess(t *testing.T) {
	service, _, user := newTestService(t)
	handler := NewHandler(service)

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"`+user.Email+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var session Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.Equal(t, user.ID, session.User.ID)
}

func TestLoginHandlerRejectsMalformedBody(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service)

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterHandlerForcesUserRole(t *testing.T) {
	store := newFakeUserStore()
	handler := NewHandler(NewService(store, "test-secret"))

	// The public route ignores any role a client might try to smuggle
	// into the payload; unknown fields are rejected outright.
	rec := postJSON(t, handler.Register, "/auth/register", `{"name":"Eve","email":"eve@example.com","password":"Sup3r$ecret","role":"admin"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler.Register, "/auth/register", `{"name":"Eve","email":"eve@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var session Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.Equal(t, authz.RoleUser, session.User.Role)
}

func TestRegisterHandlerWeakPasswordDetails(t *testing.T) {
	store := newFakeUserStore()
	handler := NewHandler(NewService(store, "test-secret"))

	rec := postJSON(t, handler.Register, "/auth/register", `{"name":"Eve","email":"eve@example.com","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeBody(t, rec)
	details, ok := payload["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 3)
}

func TestRegisterHandlerDuplicateEmail(t *testing.T) {
	service, _, user := newTestService(t)
	handler := NewHandler(service)

	rec := postJSON(t, handler.Register, "/auth/register", `{"name":"Copy","email":"`+user.Email+`","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestMiddleware(t *testing.T) {
	service, _, user := newTestService(t)

	session, err := service.Authenticate(context.Background(), user.Email, testPassword)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r)
		require.True(t, ok)
		require.Equal(t, user.ID, actor.ID)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rec := httptest.NewRecorder()
		Middleware("test-secret", next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		rec := httptest.NewRecorder()
		Middleware("test-secret", next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		req.Header.Set("Authorization", "Basic "+session.Token)
		rec := httptest.NewRecorder()
		Middleware("test-secret", next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rec := httptest.NewRecorder()
		Middleware("other-secret", next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		service.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
		expired, err := service.Authenticate(context.Background(), user.Email, testPassword)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		req.Header.Set("Authorization", "Bearer "+expired.Token)
		rec := httptest.NewRecorder()
		Middleware("test-secret", next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("admin passes", func(t *testing.T) {
		req := WithActor(httptest.NewRequest(http.MethodGet, "/users", nil), authz.Actor{ID: "a1", Role: authz.RoleAdmin})
		rec := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("regular user forbidden", func(t *testing.T) {
		req := WithActor(httptest.NewRequest(http.MethodGet, "/users", nil), authz.Actor{ID: "u1", Role: authz.RoleUser})
		rec := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no actor in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		rec := httptest.NewRecorder()
		RequireAdmin(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
