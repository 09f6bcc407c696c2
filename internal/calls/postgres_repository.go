package calls

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// db is the slice of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores ended calls in the relational database.
// Transcript and extraction ride along as JSONB; the ops dashboard reads
// them whole, never row by row.
type PostgresRepository struct {
	pool db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("calls: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Save upserts one ended call.
func (r *PostgresRepository) Save(ctx context.Context, detail *CallDetail) error {
	if detail == nil || detail.ID == "" {
		return ErrCallNotFound
	}

	transcript, err := json.Marshal(detail.Transcript)
	if err != nil {
		return fmt.Errorf("calls: marshal transcript: %w", err)
	}
	var extraction []byte
	if detail.Extraction != nil {
		if extraction, err = json.Marshal(detail.Extraction); err != nil {
			return fmt.Errorf("calls: marshal extraction: %w", err)
		}
	}

	query := `
		INSERT INTO calls (id, provider_sid, caller_number, status, started_at, ended_at,
			duration_sec, lead_id, confidence, outcome, transcript, extraction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			duration_sec = EXCLUDED.duration_sec,
			lead_id = EXCLUDED.lead_id,
			confidence = EXCLUDED.confidence,
			outcome = EXCLUDED.outcome,
			transcript = EXCLUDED.transcript,
			extraction = EXCLUDED.extraction
	`
	if _, err := r.pool.Exec(ctx, query,
		detail.ID,
		detail.ProviderSID,
		detail.CallerNumber,
		string(detail.Status),
		detail.StartedAt,
		detail.EndedAt,
		detail.DurationSec,
		nullable(detail.LeadID),
		detail.Confidence,
		nullable(detail.Outcome),
		transcript,
		extraction,
	); err != nil {
		return fmt.Errorf("calls: upsert failed: %w", err)
	}
	return nil
}

// GetByID fetches one call with its transcript and extraction.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*CallDetail, error) {
	query := `
		SELECT id, provider_sid, caller_number, status, started_at, ended_at,
			duration_sec, lead_id, confidence, outcome, transcript, extraction
		FROM calls
		WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)

	var (
		detail     CallDetail
		status     string
		leadID     *string
		outcome    *string
		transcript []byte
		extraction []byte
	)
	if err := row.Scan(
		&detail.ID,
		&detail.ProviderSID,
		&detail.CallerNumber,
		&status,
		&detail.StartedAt,
		&detail.EndedAt,
		&detail.DurationSec,
		&leadID,
		&detail.Confidence,
		&outcome,
		&transcript,
		&extraction,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("calls: select failed: %w", err)
	}

	detail.Status = CallStatus(status)
	if leadID != nil {
		detail.LeadID = *leadID
	}
	if outcome != nil {
		detail.Outcome = *outcome
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &detail.Transcript); err != nil {
			return nil, fmt.Errorf("calls: decode transcript: %w", err)
		}
	}
	if detail.Transcript == nil {
		detail.Transcript = []TranscriptItem{}
	}
	if len(extraction) > 0 {
		var ex Extraction
		if err := json.Unmarshal(extraction, &ex); err != nil {
			return nil, fmt.Errorf("calls: decode extraction: %w", err)
		}
		detail.Extraction = &ex
	}
	return &detail, nil
}

// List returns call history newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Call, error) {
	filter.normalize()

	query := `
		SELECT id, provider_sid, caller_number, status, started_at, ended_at,
			duration_sec, lead_id, confidence, outcome
		FROM calls
		WHERE ($1 = '' OR status = $1)
		ORDER BY started_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("calls: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Call, 0, filter.Limit)
	for rows.Next() {
		var (
			call    Call
			status  string
			leadID  *string
			outcome *string
		)
		if err := rows.Scan(
			&call.ID,
			&call.ProviderSID,
			&call.CallerNumber,
			&status,
			&call.StartedAt,
			&call.EndedAt,
			&call.DurationSec,
			&leadID,
			&call.Confidence,
			&outcome,
		); err != nil {
			return nil, fmt.Errorf("calls: scan failed: %w", err)
		}
		call.Status = CallStatus(status)
		if leadID != nil {
			call.LeadID = *leadID
		}
		if outcome != nil {
			call.Outcome = *outcome
		}
		out = append(out, &call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: rows failed: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
