// Package user is the admin-only user-management surface: listing
// accounts with activity counts, account detail, edits, deletion and
// the explicit unlock action.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"tracker-api/internal/auth"
	"tracker-api/internal/authz"
)

const pgUniqueViolation = "23505"

var ErrNoUpdates = errors.New("no fields to update")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Summary is one row of the admin user list, lock state and activity
// counts included.
type Summary struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Role                authz.Role `json:"role"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until"`
	IsLocked            bool       `json:"is_locked"`
	CreatedAt           time.Time  `json:"created_at"`
	ProjectCount        int        `json:"project_count"`
	TaskCount           int        `json:"task_count"`
}

type ProjectRef struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type TaskRef struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	ProjectName string    `json:"project_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type DetailStats struct {
	ProjectCount    int `json:"project_count"`
	TaskCount       int `json:"task_count"`
	CompletedTasks  int `json:"completed_tasks"`
	PendingTasks    int `json:"pending_tasks"`
	InProgressTasks int `json:"in_progress_tasks"`
}

// Detail is the full admin view of one account with its owned projects
// and tasks.
type Detail struct {
	Summary
	Projects []ProjectRef `json:"projects"`
	Tasks    []TaskRef    `json:"tasks"`
	Stats    DetailStats  `json:"stats"`
}

// UpdateInput carries the admin-editable fields; nil means unchanged.
type UpdateInput struct {
	Name     *string     `json:"name"`
	Email    *string     `json:"email"`
	Role     *authz.Role `json:"role"`
	Password *string     `json:"password"`
}

func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			u.id, u.name, u.email, u.role,
			u.failed_login_attempts, u.locked_until, u.created_at,
			(SELECT COUNT(*) FROM projects WHERE owner_id = u.id) AS project_count,
			(SELECT COUNT(*) FROM tasks t JOIN projects p ON t.project_id = p.id WHERE p.owner_id = u.id) AS task_count
		FROM users u
		ORDER BY u.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	users := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		var lockedUntil sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Role, &s.FailedLoginAttempts, &lockedUntil, &s.CreatedAt, &s.ProjectCount, &s.TaskCount); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if lockedUntil.Valid {
			value := lockedUntil.Time.UTC()
			s.LockedUntil = &value
			s.IsLocked = value.After(now)
		}
		users = append(users, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Detail, error) {
	var d Detail
	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, failed_login_attempts, locked_until, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Email, &d.Role, &d.FailedLoginAttempts, &lockedUntil, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Detail{}, err
		}
		return Detail{}, fmt.Errorf("query user: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		d.LockedUntil = &value
		d.IsLocked = value.After(time.Now().UTC())
	}

	d.Projects, err = r.userProjects(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d.Tasks, err = r.userTasks(ctx, id)
	if err != nil {
		return Detail{}, err
	}

	d.ProjectCount = len(d.Projects)
	d.TaskCount = len(d.Tasks)
	d.Stats = DetailStats{
		ProjectCount: len(d.Projects),
		TaskCount:    len(d.Tasks),
	}
	for _, t := range d.Tasks {
		switch t.Status {
		case "done":
			d.Stats.CompletedTasks++
		case "todo":
			d.Stats.PendingTasks++
		case "in_progress":
			d.Stats.InProgressTasks++
		}
	}

	return d, nil
}

func (r *Repository) userProjects(ctx context.Context, ownerID string) ([]ProjectRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM projects
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query user projects: %w", err)
	}
	defer rows.Close()

	projects := make([]ProjectRef, 0)
	for rows.Next() {
		var p ProjectRef
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func (r *Repository) userTasks(ctx context.Context, ownerID string) ([]TaskRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.status, p.name, t.created_at
		FROM tasks t
		JOIN projects p ON t.project_id = p.id
		WHERE p.owner_id = $1
		ORDER BY t.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query user tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]TaskRef, 0)
	for rows.Next() {
		var t TaskRef
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.ProjectName, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user task: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// Update applies the provided fields. Passwords are re-hashed here; a
// duplicate email surfaces as auth.ErrEmailTaken.
func (r *Repository) Update(ctx context.Context, id string, input UpdateInput) (auth.PublicUser, error) {
	sets := make([]string, 0, 4)
	args := []any{id}
	next := 2

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if input.Name != nil {
		addSet("name", strings.TrimSpace(*input.Name))
	}
	if input.Email != nil {
		addSet("email", strings.TrimSpace(strings.ToLower(*input.Email)))
	}
	if input.Role != nil {
		addSet("role", *input.Role)
	}
	if input.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return auth.PublicUser{}, fmt.Errorf("hash password: %w", err)
		}
		addSet("password_hash", string(hash))
	}

	if len(sets) == 0 {
		return auth.PublicUser{}, ErrNoUpdates
	}

	var u auth.PublicUser
	query := fmt.Sprintf(`
		UPDATE users
		SET %s
		WHERE id = $1
		RETURNING id, name, email, role, created_at
	`, strings.Join(sets, ", "))
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.PublicUser{}, err
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return auth.PublicUser{}, auth.ErrEmailTaken
		}
		return auth.PublicUser{}, fmt.Errorf("update user: %w", err)
	}

	return u, nil
}

// Delete removes the account. Owned projects and their tasks go with
// it through the cascading foreign keys.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
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
