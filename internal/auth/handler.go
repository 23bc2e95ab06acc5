package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"tracker-api/internal/authz"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and signs the caller in. The public
// route always creates a regular user; admins are created through the
// admin-gated user-management surface.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	session, err := h.service.Register(r.Context(), NewUser{
		Name:     body.Name,
		Email:    body.Email,
		Password: body.Password,
		Role:     authz.RoleUser,
	})
	if err != nil {
		var invalid ErrInvalidInput
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Reason)
			return
		}
		var weak ErrWeakPassword
		if errors.As(err, &weak) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "password does not meet policy",
				"details": weak.Problems,
			})
			return
		}
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already in use")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Login runs one authentication attempt with the account lockout
// policy applied. Invalid credentials report the attempts remaining
// before lock; a locked account answers 423 with the minutes left.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	session, err := h.service.Authenticate(r.Context(), body.Email, body.Password)
	if err != nil {
		var invalid ErrInvalidCredentials
		if errors.As(err, &invalid) {
			payload := map[string]any{"error": "invalid credentials"}
			if invalid.AttemptsRemaining >= 0 {
				payload["attempts_remaining"] = invalid.AttemptsRemaining
			}
			writeJSON(w, http.StatusUnauthorized, payload)
			return
		}
		var locked ErrAccountLocked
		if errors.As(err, &locked) {
			now := time.Now().UTC()
			retryAfter := int(locked.Until.Sub(now).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusLocked, map[string]any{
				"error":             "account temporarily locked",
				"minutes_remaining": locked.MinutesRemaining(now),
			})
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
