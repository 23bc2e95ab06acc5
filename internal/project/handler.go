package project

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

type Handler struct {
	repo   *Repository
	policy *authz.Service
}

func NewHandler(repo *Repository, policy *authz.Service) *Handler {
	return &Handler{repo: repo, policy: policy}
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	projects, err := h.repo.List(r.Context(), authz.ListScope(actor))
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}
	if input.Name == nil || len(strings.TrimSpace(*input.Name)) < 2 {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}

	description := ""
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}

	p, err := h.repo.Create(r.Context(), actor.ID, strings.TrimSpace(*input.Name), description)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to get project")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}
	if input.Name != nil && len(strings.TrimSpace(*input.Name)) < 2 {
		writeError(w, http.StatusBadRequest, "name must be at least 2 characters")
		return
	}

	p, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update project")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// authorize validates the path id and runs the project access check,
// writing the error response itself when access is not allowed.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return "", false
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return "", false
	}

	decision, err := h.policy.AuthorizeProjectAccess(r.Context(), actor, id)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to check project access")
		return "", false
	}
	switch decision {
	case authz.NotFound:
		writeError(w, http.StatusNotFound, "project not found")
		return "", false
	case authz.Denied:
		writeError(w, http.StatusForbidden, "access denied")
		return "", false
	}

	return id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return Input{}, false
	}

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
