package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Decision is the three-valued outcome of a resource access check.
// Absence and denial stay distinct so the surface layer can map them to
// 404 and 403 without the policy conflating the two.
type Decision int

const (
	Allowed Decision = iota
	Denied
	NotFound
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ProjectStore resolves a project's owner. Implementations return
// sql.ErrNoRows when the project does not exist.
type ProjectStore interface {
	ProjectOwner(ctx context.Context, projectID string) (string, error)
}

// TaskStore resolves a task's parent project. Implementations return
// sql.ErrNoRows when the task does not exist.
type TaskStore interface {
	TaskProjectID(ctx context.Context, taskID string) (string, error)
}

// Service resolves the ownership chain (task -> project -> owner)
// through the store and applies the pure policy. Client-supplied owner
// fields are never consulted.
type Service struct {
	projects ProjectStore
	tasks    TaskStore
}

func NewService(projects ProjectStore, tasks TaskStore) *Service {
	return &Service{projects: projects, tasks: tasks}
}

// AuthorizeProjectAccess decides whether actor may access projectID.
// Storage failures are returned as-is; the decision is then meaningless.
func (s *Service) AuthorizeProjectAccess(ctx context.Context, actor Actor, projectID string) (Decision, error) {
	ownerID, err := s.projects.ProjectOwner(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound, nil
		}
		return Denied, fmt.Errorf("resolve project owner: %w", err)
	}

	if !CanAccessProject(actor, ownerID) {
		return Denied, nil
	}

	return Allowed, nil
}

// AuthorizeTaskAccess decides whether actor may access taskID by
// resolving its parent project. A task's own fields carry no access
// rights.
func (s *Service) AuthorizeTaskAccess(ctx context.Context, actor Actor, taskID string) (Decision, error) {
	projectID, err := s.tasks.TaskProjectID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound, nil
		}
		return Denied, fmt.Errorf("resolve task project: %w", err)
	}

	return s.AuthorizeProjectAccess(ctx, actor, projectID)
}
