package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tracker-api/internal/authz"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const taskColumns = `id, project_id, title, description, status, due_date, created_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var due sql.NullTime
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &due, &t.CreatedAt); err != nil {
		return Task{}, err
	}
	if due.Valid {
		value := due.Time.UTC()
		t.DueDate = &value
	}
	return t, nil
}

// List returns tasks visible under the scope, newest first. The
// owner-scoped query joins through projects; a task's visibility is
// always its project owner's.
func (r *Repository) List(ctx context.Context, scope authz.Scope) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if scope.All {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+taskColumns+`
			FROM tasks
			ORDER BY created_at DESC
		`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT t.id, t.project_id, t.title, t.description, t.status, t.due_date, t.created_at
			FROM tasks t
			JOIN projects p ON p.id = t.project_id
			WHERE p.owner_id = $1
			ORDER BY t.created_at DESC
		`, scope.OwnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	return collectTasks(rows)
}

func (r *Repository) ListByProject(ctx context.Context, projectID string) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = $1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project tasks: %w", err)
	}

	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("query task: %w", err)
	}

	return t, nil
}

// TaskProjectID implements authz.TaskStore.
func (r *Repository) TaskProjectID(ctx context.Context, taskID string) (string, error) {
	var projectID string
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id FROM tasks WHERE id = $1
	`, taskID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("query task project: %w", err)
	}

	return projectID, nil
}

func (r *Repository) Create(ctx context.Context, projectID, title, description string, status Status, dueDate *time.Time) (Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	t := Task{
		ID:          id.String(),
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      status,
		DueDate:     dueDate,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.DueDate, t.CreatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	return t, nil
}

// Update applies the non-nil fields and returns the stored row.
func (r *Repository) Update(ctx context.Context, id string, input Input) (Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			due_date = COALESCE($5, due_date)
		WHERE id = $1
		RETURNING `+taskColumns+`
	`, id, input.Title, input.Description, input.Status, input.DueDate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}

	return t, nil
}

// UpdateStatus is the quick transition used by board drag and drop.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) (Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = $2
		WHERE id = $1
		RETURNING `+taskColumns+`
	`, id, status))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("update task status: %w", err)
	}

	return t, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
