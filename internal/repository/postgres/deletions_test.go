package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

func TestDeletionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewDeletionRepository(mock)

	requestedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	request := domain.DeletionRequest{
		ID:          "del-1",
		SubjectID:   "sub-1",
		State:       domain.DeletionOtpSent,
		RequestedAt: requestedAt,
	}

	mock.ExpectExec(`INSERT INTO stepup\.deletion_requests`).
		WithArgs("del-1", "sub-1", domain.DeletionOtpSent, false, 0, requestedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), request); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletionRepository_GetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewDeletionRepository(mock)

	requestedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, subject_id, state, otp_consumed, phrase_attempts, requested_at, confirmed_at FROM stepup\.deletion_requests`).
		WithArgs("sub-1", domain.DeletionConfirmed, domain.DeletionCancelled).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "subject_id", "state", "otp_consumed", "phrase_attempts", "requested_at", "confirmed_at",
		}).AddRow("del-1", "sub-1", domain.DeletionOtpVerified, true, 1, requestedAt, nil))

	request, err := repo.GetActive(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetActive returned error: %v", err)
	}
	if request.State != domain.DeletionOtpVerified {
		t.Fatalf("unexpected state %s", request.State)
	}
	if !request.OtpConsumed || request.PhraseAttempts != 1 {
		t.Fatalf("unexpected progress fields: %+v", request)
	}
	if request.ConfirmedAt != nil {
		t.Fatal("expected no confirmation timestamp")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletionRepository_GetActiveMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewDeletionRepository(mock)

	mock.ExpectQuery(`SELECT id, subject_id, state, otp_consumed, phrase_attempts, requested_at, confirmed_at FROM stepup\.deletion_requests`).
		WithArgs("sub-1", domain.DeletionConfirmed, domain.DeletionCancelled).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "subject_id", "state", "otp_consumed", "phrase_attempts", "requested_at", "confirmed_at",
		}))

	if _, err := repo.GetActive(context.Background(), "sub-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletionRepository_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewDeletionRepository(mock)

	confirmedAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	request := domain.DeletionRequest{
		ID:             "del-1",
		SubjectID:      "sub-1",
		State:          domain.DeletionConfirmed,
		OtpConsumed:    true,
		PhraseAttempts: 1,
		ConfirmedAt:    &confirmedAt,
	}

	mock.ExpectExec(`UPDATE stepup\.deletion_requests SET state`).
		WithArgs(domain.DeletionConfirmed, true, 1, &confirmedAt, "del-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Update(context.Background(), request); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletionRepository_UpdateMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewDeletionRepository(mock)

	mock.ExpectExec(`UPDATE stepup\.deletion_requests SET state`).
		WithArgs(domain.DeletionCancelled, false, 0, pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	request := domain.DeletionRequest{ID: "ghost", State: domain.DeletionCancelled}
	if err := repo.Update(context.Background(), request); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
