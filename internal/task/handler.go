package task

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

// ListTasks returns tasks in the caller's scope, or a single project's
// tasks when ?project_id= is given and the project access check passes.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if projectID := strings.TrimSpace(r.URL.Query().Get("project_id")); projectID != "" {
		if _, err := uuid.Parse(projectID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid project id")
			return
		}
		if !h.allowProject(w, r, actor, projectID) {
			return
		}

		tasks, err := h.repo.ListByProject(r.Context(), projectID)
		if err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		writeJSON(w, http.StatusOK, tasks)
		return
	}

	tasks, err := h.repo.List(r.Context(), authz.ListScope(actor))
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}
	if input.ProjectID == nil {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if _, err := uuid.Parse(*input.ProjectID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	if input.Title == nil || len(strings.TrimSpace(*input.Title)) < 2 {
		writeError(w, http.StatusBadRequest, "title must be at least 2 characters")
		return
	}

	status := StatusTodo
	if input.Status != nil {
		if !input.Status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be todo, in_progress or done")
			return
		}
		status = *input.Status
	}

	description := ""
	if input.Description != nil {
		description = strings.TrimSpace(*input.Description)
	}

	if !h.allowProject(w, r, actor, *input.ProjectID) {
		return
	}

	t, err := h.repo.Create(r.Context(), *input.ProjectID, strings.TrimSpace(*input.Title), description, status, input.DueDate)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}
	if input.Title != nil && len(strings.TrimSpace(*input.Title)) < 2 {
		writeError(w, http.StatusBadRequest, "title must be at least 2 characters")
		return
	}
	if input.Status != nil && !input.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be todo, in_progress or done")
		return
	}
	// A task never changes project, even if a project_id is supplied.
	input.ProjectID = nil

	t, err := h.repo.Update(r.Context(), id, input)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// UpdateTaskStatus handles the board's drag-and-drop transition.
func (h *Handler) UpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body struct {
		Status Status `json:"status"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if !body.Status.Valid() {
		writeError(w, http.StatusBadRequest, "status must be todo, in_progress or done")
		return
	}

	t, err := h.repo.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update task status")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// authorize validates the path id and runs the task access check
// through the task's parent project.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return "", false
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return "", false
	}

	decision, err := h.policy.AuthorizeTaskAccess(r.Context(), actor, id)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to check task access")
		return "", false
	}
	switch decision {
	case authz.NotFound:
		writeError(w, http.StatusNotFound, "task not found")
		return "", false
	case authz.Denied:
		writeError(w, http.StatusForbidden, "access denied")
		return "", false
	}

	return id, true
}

func (h *Handler) allowProject(w http.ResponseWriter, r *http.Request, actor authz.Actor, projectID string) bool {
	decision, err := h.policy.AuthorizeProjectAccess(r.Context(), actor, projectID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to check project access")
		return false
	}
	switch decision {
	case authz.NotFound:
		writeError(w, http.StatusNotFound, "project not found")
		return false
	case authz.Denied:
		writeError(w, http.StatusForbidden, "access denied")
		return false
	}

	return true
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
