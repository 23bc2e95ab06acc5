// Package stats computes the aggregate numbers behind the dashboard
// and analytics views. Every query is scope-filtered in SQL: admins see
// global figures, everyone else only their own rows.
package stats

// UserStats is the admin-only accounts breakdown.
type UserStats struct {
	Total   int `json:"total"`
	Admins  int `json:"admins"`
	Regular int `json:"regular"`
	Locked  int `json:"locked"`
}

// ActivityPoint is one day of task creation activity.
type ActivityPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ProjectStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type TaskStats struct {
	Total          int             `json:"total"`
	ByStatus       map[string]int  `json:"by_status"`
	RecentActivity []ActivityPoint `json:"recent_activity"`
}

// Overview is the dashboard payload. Users is nil for non-admins.
type Overview struct {
	Users    *UserStats   `json:"users,omitempty"`
	Projects ProjectStats `json:"projects"`
	Tasks    TaskStats    `json:"tasks"`
}

// ChartPoint is one labeled slice of a chart series, with the display
// color assigned server-side.
type ChartPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// MonthlyPoint is one month of created/completed task counts.
type MonthlyPoint struct {
	Month          string `json:"month"`
	TasksCreated   int    `json:"tasks_created"`
	TasksCompleted int    `json:"tasks_completed"`
}

// Charts is the analytics payload. UserActivity is admin-only;
// ProjectActivity is its owner-scoped counterpart.
type Charts struct {
	ProjectsStatus  []ChartPoint   `json:"projects_status"`
	TasksStatus     []ChartPoint   `json:"tasks_status"`
	UserActivity    []ChartPoint   `json:"user_activity,omitempty"`
	ProjectActivity []ChartPoint   `json:"project_activity,omitempty"`
	MonthlyProgress []MonthlyPoint `json:"monthly_progress"`
}
