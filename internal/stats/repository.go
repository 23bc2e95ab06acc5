package stats

import (
	"context"
	"database/sql"
	"fmt"

	"tracker-api/internal/authz"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Overview builds the dashboard aggregates for the given scope. The
// accounts breakdown is only computed for the unrestricted scope.
func (r *Repository) Overview(ctx context.Context, scope authz.Scope) (Overview, error) {
	var overview Overview

	if scope.All {
		users, err := r.userStats(ctx)
		if err != nil {
			return Overview{}, err
		}
		overview.Users = &users
	}

	projects, err := r.projectStats(ctx, scope)
	if err != nil {
		return Overview{}, err
	}
	overview.Projects = projects

	tasks, err := r.taskStats(ctx, scope)
	if err != nil {
		return Overview{}, err
	}
	overview.Tasks = tasks

	return overview, nil
}

func (r *Repository) userStats(ctx context.Context) (UserStats, error) {
	var s UserStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE role = 'admin'),
			COUNT(*) FILTER (WHERE locked_until IS NOT NULL AND locked_until > NOW())
		FROM users
	`).Scan(&s.Total, &s.Admins, &s.Locked)
	if err != nil {
		return UserStats{}, fmt.Errorf("query user stats: %w", err)
	}
	s.Regular = s.Total - s.Admins

	return s, nil
}

// projectStats buckets each project by the state of its tasks: any
// unfinished task means in_progress, all done means completed, no
// tasks at all is its own bucket.
func (r *Repository) projectStats(ctx context.Context, scope authz.Scope) (ProjectStats, error) {
	s := ProjectStats{
		ByStatus: map[string]int{"completed": 0, "in_progress": 0, "no_tasks": 0},
	}

	query := `
		SELECT
			CASE
				WHEN EXISTS(SELECT 1 FROM tasks WHERE project_id = projects.id AND status <> 'done') THEN 'in_progress'
				WHEN EXISTS(SELECT 1 FROM tasks WHERE project_id = projects.id) THEN 'completed'
				ELSE 'no_tasks'
			END AS bucket,
			COUNT(*)
		FROM projects
	`
	args := []any{}
	if !scope.All {
		query += ` WHERE owner_id = $1`
		args = append(args, scope.OwnerID)
	}
	query += ` GROUP BY 1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ProjectStats{}, fmt.Errorf("query project stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return ProjectStats{}, fmt.Errorf("scan project stats: %w", err)
		}
		s.ByStatus[bucket] = count
		s.Total += count
	}

	return s, rows.Err()
}

func (r *Repository) taskStats(ctx context.Context, scope authz.Scope) (TaskStats, error) {
	s := TaskStats{
		ByStatus:       map[string]int{"todo": 0, "in_progress": 0, "done": 0},
		RecentActivity: make([]ActivityPoint, 0),
	}

	byStatusQuery := `
		SELECT t.status, COUNT(*)
		FROM tasks t
	`
	activityQuery := `
		SELECT to_char(t.created_at, 'YYYY-MM-DD'), COUNT(*)
		FROM tasks t
	`
	args := []any{}
	suffix := ""
	if !scope.All {
		suffix = ` JOIN projects p ON p.id = t.project_id WHERE p.owner_id = $1`
		args = append(args, scope.OwnerID)
	}

	rows, err := r.db.QueryContext(ctx, byStatusQuery+suffix+` GROUP BY t.status`, args...)
	if err != nil {
		return TaskStats{}, fmt.Errorf("query task stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return TaskStats{}, fmt.Errorf("scan task stats: %w", err)
		}
		s.ByStatus[status] = count
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return TaskStats{}, err
	}

	activityCond := ` t.created_at >= NOW() - INTERVAL '30 days'`
	if suffix == "" {
		activityCond = ` WHERE` + activityCond
	} else {
		activityCond = suffix + ` AND` + activityCond
	}
	rows, err = r.db.QueryContext(ctx, activityQuery+activityCond+` GROUP BY 1 ORDER BY 1 DESC LIMIT 30`, args...)
	if err != nil {
		return TaskStats{}, fmt.Errorf("query task activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var point ActivityPoint
		if err := rows.Scan(&point.Date, &point.Count); err != nil {
			return TaskStats{}, fmt.Errorf("scan task activity: %w", err)
		}
		s.RecentActivity = append(s.RecentActivity, point)
	}

	return s, rows.Err()
}

var (
	statusColors   = []string{"#10b981", "#f59e0b", "#ef4444"}
	activityColors = []string{"#3b82f6", "#8b5cf6", "#06b6d4", "#84cc16", "#f97316"}
)

func colorize(points []ChartPoint, colors []string) []ChartPoint {
	for i := range points {
		points[i].Color = colors[i%len(colors)]
	}
	return points
}

// Charts builds the analytics series for the given scope.
func (r *Repository) Charts(ctx context.Context, scope authz.Scope) (Charts, error) {
	var charts Charts

	projectsStatus, err := r.projectStatusSeries(ctx, scope)
	if err != nil {
		return Charts{}, err
	}
	charts.ProjectsStatus = colorize(projectsStatus, statusColors)

	tasksStatus, err := r.taskStatusSeries(ctx, scope)
	if err != nil {
		return Charts{}, err
	}
	charts.TasksStatus = colorize(tasksStatus, statusColors)

	if scope.All {
		userActivity, err := r.userActivitySeries(ctx)
		if err != nil {
			return Charts{}, err
		}
		charts.UserActivity = colorize(userActivity, activityColors)
	} else {
		projectActivity, err := r.projectActivitySeries(ctx, scope.OwnerID)
		if err != nil {
			return Charts{}, err
		}
		charts.ProjectActivity = colorize(projectActivity, activityColors)
	}

	monthly, err := r.monthlyProgressSeries(ctx, scope)
	if err != nil {
		return Charts{}, err
	}
	charts.MonthlyProgress = monthly

	return charts, nil
}

func (r *Repository) projectStatusSeries(ctx context.Context, scope authz.Scope) ([]ChartPoint, error) {
	query := `
		SELECT
			CASE
				WHEN EXISTS(SELECT 1 FROM tasks WHERE project_id = projects.id AND status <> 'done') THEN 'in_progress'
				WHEN EXISTS(SELECT 1 FROM tasks WHERE project_id = projects.id) THEN 'completed'
				ELSE 'no_tasks'
			END AS bucket,
			COUNT(*)
		FROM projects
	`
	args := []any{}
	if !scope.All {
		query += ` WHERE owner_id = $1`
		args = append(args, scope.OwnerID)
	}
	query += ` GROUP BY 1`

	return r.chartSeries(ctx, query, args...)
}

func (r *Repository) taskStatusSeries(ctx context.Context, scope authz.Scope) ([]ChartPoint, error) {
	query := `
		SELECT t.status, COUNT(*)
		FROM tasks t
	`
	args := []any{}
	if !scope.All {
		query += ` JOIN projects p ON p.id = t.project_id WHERE p.owner_id = $1`
		args = append(args, scope.OwnerID)
	}
	query += ` GROUP BY t.status`

	return r.chartSeries(ctx, query, args...)
}

// userActivitySeries is the admin top-10 of users by task volume.
func (r *Repository) userActivitySeries(ctx context.Context) ([]ChartPoint, error) {
	return r.chartSeries(ctx, `
		SELECT u.name, COUNT(t.id)
		FROM users u
		LEFT JOIN projects p ON u.id = p.owner_id
		LEFT JOIN tasks t ON p.id = t.project_id
		GROUP BY u.id, u.name
		HAVING COUNT(t.id) > 0
		ORDER BY COUNT(t.id) DESC
		LIMIT 10
	`)
}

func (r *Repository) projectActivitySeries(ctx context.Context, ownerID string) ([]ChartPoint, error) {
	return r.chartSeries(ctx, `
		SELECT p.name, COUNT(t.id)
		FROM projects p
		LEFT JOIN tasks t ON p.id = t.project_id
		WHERE p.owner_id = $1
		GROUP BY p.id, p.name
		ORDER BY COUNT(t.id) DESC
	`, ownerID)
}

func (r *Repository) monthlyProgressSeries(ctx context.Context, scope authz.Scope) ([]MonthlyPoint, error) {
	query := `
		SELECT
			to_char(t.created_at, 'YYYY-MM') AS month,
			COUNT(*),
			COUNT(*) FILTER (WHERE t.status = 'done')
		FROM tasks t
	`
	args := []any{}
	if scope.All {
		query += ` WHERE t.created_at >= NOW() - INTERVAL '12 months'`
	} else {
		query += ` JOIN projects p ON p.id = t.project_id
			WHERE p.owner_id = $1 AND t.created_at >= NOW() - INTERVAL '12 months'`
		args = append(args, scope.OwnerID)
	}
	query += ` GROUP BY 1 ORDER BY 1`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly progress: %w", err)
	}
	defer rows.Close()

	points := make([]MonthlyPoint, 0)
	for rows.Next() {
		var point MonthlyPoint
		if err := rows.Scan(&point.Month, &point.TasksCreated, &point.TasksCompleted); err != nil {
			return nil, fmt.Errorf("scan monthly progress: %w", err)
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

func (r *Repository) chartSeries(ctx context.Context, query string, args ...any) ([]ChartPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chart series: %w", err)
	}
	defer rows.Close()

	points := make([]ChartPoint, 0)
	for rows.Next() {
		var point ChartPoint
		if err := rows.Scan(&point.Label, &point.Value); err != nil {
			return nil, fmt.Errorf("scan chart series: %w", err)
		}
		points = append(points, point)
	}

	return points, rows.Err()
}
