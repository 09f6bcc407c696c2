package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresSave(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	started := time.UnixMilli(1_700_000_000_000)
	detail := sampleDetail("call-1", started, StatusCompleted)

	mock.ExpectExec("INSERT INTO calls").
		WithArgs(
			"call-1",
			"CAcall-1",
			"+15550100",
			"COMPLETED",
			detail.StartedAt,
			detail.EndedAt,
			90,
			(*string)(nil),
			0.0,
			(*string)(nil),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPostgresRepository(mock)
	if err := repo.Save(context.Background(), detail); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	started := time.UnixMilli(1_700_000_000_000)
	ended := started.Add(90 * time.Second)
	leadID := "lead-7"
	transcript := []byte(`[{"id":"t-1","call_id":"call-1","speaker":"AI","text":"Hello","is_final":true}]`)
	extraction := []byte(`{"caller_name":"Jane","confirmed":true}`)

	rows := pgxmock.NewRows([]string{
		"id", "provider_sid", "caller_number", "status", "started_at", "ended_at",
		"duration_sec", "lead_id", "confidence", "outcome", "transcript", "extraction",
	}).AddRow(
		"call-1", "CAcall-1", "+15550100", "COMPLETED", started, &ended,
		90, &leadID, 0.92, (*string)(nil), transcript, extraction,
	)
	mock.ExpectQuery("SELECT (.+) FROM calls").WithArgs("call-1").WillReturnRows(rows)

	repo := NewPostgresRepository(mock)
	got, err := repo.GetByID(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted || got.LeadID != "lead-7" {
		t.Errorf("unexpected call: %+v", got.Call)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Text != "Hello" {
		t.Errorf("transcript not decoded: %+v", got.Transcript)
	}
	if got.Extraction == nil || !got.Extraction.Confirmed {
		t.Errorf("extraction not decoded: %+v", got.Extraction)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM calls").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrCallNotFound) {
		t.Errorf("expected ErrCallNotFound, got %v", err)
	}
}

func TestPostgresList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	started := time.UnixMilli(1_700_000_000_000)
	rows := pgxmock.NewRows([]string{
		"id", "provider_sid", "caller_number", "status", "started_at", "ended_at",
		"duration_sec", "lead_id", "confidence", "outcome",
	}).AddRow(
		"call-2", "CAcall-2", "+15550101", "COMPLETED", started.Add(time.Minute), (*time.Time)(nil),
		60, (*string)(nil), 0.8, (*string)(nil),
	).AddRow(
		"call-1", "CAcall-1", "+15550100", "COMPLETED", started, (*time.Time)(nil),
		90, (*string)(nil), 0.9, (*string)(nil),
	)
	mock.ExpectQuery("SELECT (.+) FROM calls").
		WithArgs("COMPLETED", 50, 0).
		WillReturnRows(rows)

	repo := NewPostgresRepository(mock)
	list, err := repo.List(context.Background(), ListFilter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "call-2" {
		t.Errorf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
