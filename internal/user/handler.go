package user

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"tracker-api/internal/auth"
	"tracker-api/internal/authz"
)

const maxJSONBodyBytes = 1 << 20

// Handler serves the admin user-management routes. The admin gate is
// applied at the router; self-targeting guards live here because they
// need the actor and the path id together.
type Handler struct {
	repo        *Repository
	authService *auth.Service
	accounts    auth.UserStore
}

func NewHandler(repo *Repository, authService *auth.Service, accounts auth.UserStore) *Handler {
	return &Handler{repo: repo, authService: authService, accounts: accounts}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	detail, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

type createRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     authz.Role `json:"role"`
}

// CreateUser lets an admin create an account with an explicit role.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body createRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	input := auth.NewUser{
		Name:     strings.TrimSpace(body.Name),
		Email:    strings.TrimSpace(strings.ToLower(body.Email)),
		Password: body.Password,
		Role:     body.Role,
	}
	if input.Role == "" {
		input.Role = authz.RoleUser
	}

	if err := auth.ValidateNewUser(input); err != nil {
		writeValidationError(w, err)
		return
	}

	created, err := h.accounts.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already in use")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, created.Public())
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var input UpdateInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if input.Name != nil && len(strings.TrimSpace(*input.Name)) < 2 {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}
	if input.Email != nil && !strings.Contains(*input.Email, "@") {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			writeError(w, http.StatusBadRequest, "role must be admin or user")
			return
		}
		if !authz.CanChangeRole(actor, id, *input.Role) {
			writeError(w, http.StatusBadRequest, "you cannot change your own role")
			return
		}
	}
	if input.Password != nil {
		if problems := auth.PasswordProblems(*input.Password); len(problems) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "password does not meet policy",
				"details": problems,
			})
			return
		}
	}

	updated, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoUpdates):
			writeError(w, http.StatusBadRequest, "no fields to update")
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already in use")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteUser removes an account and, by cascade, all its projects and
// their tasks. Admins can never delete their own account here.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if !authz.CanDeleteUser(actor, id) {
		writeError(w, http.StatusBadRequest, "you cannot delete your own account")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// UnlockUser resets the failure counter and clears any active lock.
// Idempotent: unlocking an unlocked account succeeds.
func (h *Handler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.authService.Unlock(r.Context(), id); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to unlock user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user unlocked"})
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	return id, true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var invalid auth.ErrInvalidInput
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, invalid.Reason)
		return
	}
	var weak auth.ErrWeakPassword
	if errors.As(err, &weak) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "password does not meet policy",
			"details": weak.Problems,
		})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid input")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
