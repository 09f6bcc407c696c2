package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const apptColumns = `id, lead_id, call_id, customer_name, phone, service, status,
	starts_at, duration_min, notes, created_at, updated_at`

// Create books a new slot.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	duration := req.DurationMin
	if duration <= 0 {
		duration = 30
	}
	query := `
		INSERT INTO appointments (id, lead_id, call_id, customer_name, phone, service,
			status, starts_at, duration_min, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		emptyToNil(req.LeadID),
		emptyToNil(req.CallID),
		req.CustomerName,
		req.Phone,
		req.Service,
		string(StatusScheduled),
		req.StartsAt.UTC(),
		duration,
		req.Notes,
	).Scan(&createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}

	return &Appointment{
		ID:           id.String(),
		LeadID:       req.LeadID,
		CallID:       req.CallID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Service:      req.Service,
		Status:       StatusScheduled,
		StartsAt:     req.StartsAt.UTC(),
		DurationMin:  duration,
		Notes:        req.Notes,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// GetByID fetches one appointment.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// List returns appointments ordered by start time.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	filter.normalize()

	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE ($1 = '' OR status = $1)
		  AND ($2::timestamptz IS NULL OR starts_at >= $2)
		  AND ($3::timestamptz IS NULL OR starts_at < $3)
		ORDER BY starts_at ASC, id ASC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		string(filter.Status), zeroToNil(filter.From), zeroToNil(filter.To),
		filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0, filter.Limit)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows failed: %w", err)
	}
	return out, nil
}

// Update applies the set fields of the request.
func (r *PostgresRepository) Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error) {
	var status *string
	if req.Status != "" {
		parsed, ok := ParseStatus(req.Status)
		if !ok {
			return nil, ErrUnknownStatus
		}
		s := string(parsed)
		status = &s
	}

	query := `
		UPDATE appointments
		SET status = COALESCE($2, status),
			starts_at = COALESCE($3, starts_at),
			duration_min = COALESCE($4, duration_min),
			notes = COALESCE($5, notes),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + apptColumns
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, status, req.StartsAt, req.DurationMin, req.Notes))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: update failed: %w", err)
	}
	return appt, nil
}

// Cancel marks a slot cancelled.
func (r *PostgresRepository) Cancel(ctx context.Context, id string) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + apptColumns
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, string(StatusCancelled)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: cancel failed: %w", err)
	}
	return appt, nil
}

// Stats counts appointments for the dashboard.
func (r *PostgresRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `
		SELECT status,
			COUNT(*),
			COUNT(*) FILTER (WHERE starts_at >= $1 AND starts_at < $2),
			COUNT(*) FILTER (WHERE starts_at >= $3 AND starts_at < $4),
			COUNT(*) FILTER (WHERE starts_at >= $5 AND starts_at < $6)
		FROM appointments
		GROUP BY status
	`
	rows, err := r.pool.Query(ctx, query,
		dayStart, dayStart.AddDate(0, 0, 1),
		weekStart, weekStart.AddDate(0, 0, 7),
		monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, fmt.Errorf("appointments: stats failed: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByStatus: make(map[string]int)}
	for rows.Next() {
		var (
			status                  string
			total, day, week, month int
		)
		if err := rows.Scan(&status, &total, &day, &week, &month); err != nil {
			return nil, fmt.Errorf("appointments: stats scan failed: %w", err)
		}
		stats.ByStatus[status] = total
		if status != string(StatusCancelled) {
			stats.Today += day
			stats.ThisWeek += week
			stats.ThisMonth += month
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: stats rows failed: %w", err)
	}
	return stats, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt   Appointment
		status string
		leadID *string
		callID *string
		phone  *string
		notes  *string
	)
	if err := row.Scan(
		&appt.ID,
		&leadID,
		&callID,
		&appt.CustomerName,
		&phone,
		&appt.Service,
		&status,
		&appt.StartsAt,
		&appt.DurationMin,
		&notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Status = AppointmentStatus(status)
	if leadID != nil {
		appt.LeadID = *leadID
	}
	if callID != nil {
		appt.CallID = *callID
	}
	if phone != nil {
		appt.Phone = *phone
	}
	if notes != nil {
		appt.Notes = *notes
	}
	return &appt, nil
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func zeroToNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
