package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

// DeletionRepository implements port.DeletionRepository using PostgreSQL.
type DeletionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDeletionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewDeletionRepository(exec pgExecutor) *DeletionRepository {
	return &DeletionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new deletion request row.
func (r *DeletionRepository) Create(ctx context.Context, request domain.DeletionRequest) error {
	stmt, args, err := r.builder.Insert("stepup.deletion_requests").
		Columns(
			"id",
			"subject_id",
			"state",
			"otp_consumed",
			"phrase_attempts",
			"requested_at",
			"confirmed_at",
		).
		Values(
			request.ID,
			request.SubjectID,
			request.State,
			request.OtpConsumed,
			request.PhraseAttempts,
			request.RequestedAt,
			request.ConfirmedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert deletion request sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert deletion request: %w", err)
	}

	return nil
}

// GetActive returns the latest non-terminal deletion request for the subject.
func (r *DeletionRepository) GetActive(ctx context.Context, subjectID string) (*domain.DeletionRequest, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"subject_id",
		"state",
		"otp_consumed",
		"phrase_attempts",
		"requested_at",
		"confirmed_at",
	).
		From("stepup.deletion_requests").
		Where(squirrel.Eq{"subject_id": subjectID}).
		Where(squirrel.NotEq{"state": []domain.DeletionState{domain.DeletionConfirmed, domain.DeletionCancelled}}).
		OrderBy("requested_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select deletion request sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		request     domain.DeletionRequest
		confirmedAt sql.NullTime
	)

	if err := row.Scan(
		&request.ID,
		&request.SubjectID,
		&request.State,
		&request.OtpConsumed,
		&request.PhraseAttempts,
		&request.RequestedAt,
		&confirmedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan deletion request: %w", err)
	}

	if confirmedAt.Valid {
		at := confirmedAt.Time
		request.ConfirmedAt = &at
	}

	return &request, nil
}

// Update persists state transitions of a deletion request.
func (r *DeletionRepository) Update(ctx context.Context, request domain.DeletionRequest) error {
	stmt, args, err := r.builder.Update("stepup.deletion_requests").
		Set("state", request.State).
		Set("otp_consumed", request.OtpConsumed).
		Set("phrase_attempts", request.PhraseAttempts).
		Set("confirmed_at", request.ConfirmedAt).
		Where(squirrel.Eq{"id": request.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update deletion request sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update deletion request: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.DeletionRepository = (*DeletionRepository)(nil)
