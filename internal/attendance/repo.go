package attendance

import (
	"context"
	"database/sql"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ModuleExists reports whether a module row exists.
func (r *Repository) ModuleExists(ctx context.Context, moduleID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM modules WHERE id = $1)`, moduleID).Scan(&exists)
	return exists, err
}

// WeekExists reports whether a week row exists.
func (r *Repository) WeekExists(ctx context.Context, weekID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM weeks WHERE id = $1)`, weekID).Scan(&exists)
	return exists, err
}

// UpsertStatus writes the status for one (student, module, week) cell.
// The conflict clause is the sole concurrency guard: two concurrent writes
// to the same cell serialize on the unique constraint and the last commit
// wins, with no duplicate row and no error surfaced to either caller.
func (r *Repository) UpsertStatus(ctx context.Context, studentID, moduleID, weekID int64, status Status) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (student_id, module_id, week_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, module_id, week_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			recorded_at = NOW()
	`, studentID, moduleID, weekID, status)
	return err
}

// Module is one timetable entry.
type Module struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Teacher   string `json:"teacher"`
	Room      string `json:"room"`
	DayOfWeek string `json:"day_of_week"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

// ListModules returns the timetable in display order: weekend days first,
// the way the course schedule runs, then by start time.
func (r *Repository) ListModules(ctx context.Context) ([]Module, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, teacher, room, day_of_week, time_start::text, time_end::text
		FROM modules
		ORDER BY
			CASE day_of_week
				WHEN 'Samedi' THEN 1
				WHEN 'Dimanche' THEN 2
				WHEN 'Lundi' THEN 3
				WHEN 'Mardi' THEN 4
				WHEN 'Mercredi' THEN 5
				WHEN 'Jeudi' THEN 6
				ELSE 7
			END,
			time_start
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Teacher, &m.Room, &m.DayOfWeek, &m.TimeStart, &m.TimeEnd); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// WeekStatus is one grid cell: a semester week with the student's status
// for one module, defaulting to unknown when no record exists.
type WeekStatus struct {
	WeekID     int64  `json:"week_id"`
	WeekNumber int    `json:"week_number"`
	DateStart  string `json:"date_start"`
	DateEnd    string `json:"date_end"`
	Status     Status `json:"status"`
}

// WeekStatuses returns the student's per-week statuses for a module across
// a semester.
func (r *Repository) WeekStatuses(ctx context.Context, studentID, moduleID int64, semester string) ([]WeekStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			w.id,
			w.week_number,
			w.date_start::text,
			w.date_end::text,
			COALESCE(a.status, 'unknown')
		FROM weeks w
		LEFT JOIN attendance a
			ON a.week_id = w.id
			AND a.student_id = $1
			AND a.module_id = $2
		WHERE w.semester = $3
		ORDER BY w.week_number
	`, studentID, moduleID, semester)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []WeekStatus
	for rows.Next() {
		var w WeekStatus
		if err := rows.Scan(&w.WeekID, &w.WeekNumber, &w.DateStart, &w.DateEnd, &w.Status); err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, rows.Err()
}

// ModuleStat aggregates one module's recorded statuses for a student.
type ModuleStat struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Present  int    `json:"present_count"`
	Absent   int    `json:"absent_count"`
	Unknown  int    `json:"unknown_count"`
	Recorded int    `json:"recorded_count"`
}

// ModuleStats returns per-module counters for a student across all modules.
func (r *Repository) ModuleStats(ctx context.Context, studentID int64) ([]ModuleStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			m.id,
			m.name,
			m.type,
			COUNT(a.id) FILTER (WHERE a.status = 'present'),
			COUNT(a.id) FILTER (WHERE a.status = 'absent'),
			COUNT(a.id) FILTER (WHERE a.status = 'unknown'),
			COUNT(a.id)
		FROM modules m
		LEFT JOIN attendance a
			ON a.module_id = m.id
			AND a.student_id = $1
		GROUP BY m.id, m.name, m.type
		ORDER BY m.name
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ModuleStat
	for rows.Next() {
		var s ModuleStat
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.Present, &s.Absent, &s.Unknown, &s.Recorded); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
