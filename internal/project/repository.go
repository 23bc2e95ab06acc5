package project

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

// List returns projects visible under the given scope, newest first.
// The scope filter runs in SQL; rows outside it are never fetched. The
// unrestricted listing joins in owner names for the admin view.
func (r *Repository) List(ctx context.Context, scope authz.Scope) ([]Project, error) {
	var rows *sql.Rows
	var err error
	if scope.All {
		rows, err = r.db.QueryContext(ctx, `
			SELECT p.id, p.name, p.description, p.owner_id, u.name, p.created_at
			FROM projects p
			JOIN users u ON u.id = p.owner_id
			ORDER BY p.created_at DESC
		`)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, name, description, owner_id, '', created_at
			FROM projects
			WHERE owner_id = $1
			ORDER BY created_at DESC
		`, scope.OwnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Project, error) {
	var p Project
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_id, created_at
		FROM projects
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("query project: %w", err)
	}

	return p, nil
}

// ProjectOwner implements authz.ProjectStore.
func (r *Repository) ProjectOwner(ctx context.Context, projectID string) (string, error) {
	var ownerID string
	err := r.db.QueryRowContext(ctx, `
		SELECT owner_id FROM projects WHERE id = $1
	`, projectID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("query project owner: %w", err)
	}

	return ownerID, nil
}

func (r *Repository) Create(ctx context.Context, ownerID, name, description string) (Project, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Project{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	p := Project{
		ID:          id.String(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.Description, p.OwnerID, p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}

	return p, nil
}

// Update applies the non-nil fields and returns the stored row.
func (r *Repository) Update(ctx context.Context, id string, input Input) (Project, error) {
	var p Project
	err := r.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name = COALESCE($2, name), description = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, name, description, owner_id, created_at
	`, id, input.Name, input.Description).
		Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("update project: %w", err)
	}

	return p, nil
}

// Delete removes the project; its tasks go with it via the cascading
// foreign key.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
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
