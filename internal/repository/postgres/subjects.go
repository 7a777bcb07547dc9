package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

// SubjectRepository implements port.SubjectRepository using PostgreSQL.
// Linked provider identities live in the subject_providers table.
type SubjectRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSubjectRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSubjectRepository(exec pgExecutor) *SubjectRepository {
	return &SubjectRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID loads a subject with its linked provider identities.
func (r *SubjectRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail loads a subject by its unique email.
func (r *SubjectRepository) GetByEmail(ctx context.Context, email string) (*domain.Subject, error) {
	return r.getOne(ctx, squirrel.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *SubjectRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.Subject, error) {
	stmt, args, err := r.builder.Select(
		"id",
		"email",
		"password_hash",
		"password_algo",
		"status",
		"created_at",
		"last_password_change",
	).
		From("stepup.subjects").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select subject sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		subject            domain.Subject
		passwordHash       sql.NullString
		passwordAlgo       sql.NullString
		lastPasswordChange sql.NullTime
	)

	if err := row.Scan(
		&subject.ID,
		&subject.Email,
		&passwordHash,
		&passwordAlgo,
		&subject.Status,
		&subject.CreatedAt,
		&lastPasswordChange,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}

	if passwordHash.Valid && passwordHash.String != "" {
		hash := passwordHash.String
		subject.PasswordHash = &hash
	}
	if passwordAlgo.Valid {
		subject.PasswordAlgo = passwordAlgo.String
	}
	if lastPasswordChange.Valid {
		changed := lastPasswordChange.Time
		subject.LastPasswordChange = &changed
	}

	providers, err := r.listProviders(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	subject.Providers = providers

	return &subject, nil
}

func (r *SubjectRepository) listProviders(ctx context.Context, subjectID string) (map[string]string, error) {
	stmt, args, err := r.builder.Select("provider", "provider_id").
		From("stepup.subject_providers").
		Where(squirrel.Eq{"subject_id": subjectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select providers sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	providers := make(map[string]string)
	for rows.Next() {
		var provider, providerID string
		if err := rows.Scan(&provider, &providerID); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers[provider] = providerID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	return providers, nil
}

// UpdateStatus sets the account status.
func (r *SubjectRepository) UpdateStatus(ctx context.Context, id string, status domain.SubjectStatus) error {
	stmt, args, err := r.builder.Update("stepup.subjects").
		Set("status", status).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update status sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update subject status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword stores a new password hash for the subject.
func (r *SubjectRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("stepup.subjects").
		Set("password_hash", passwordHash).
		Set("password_algo", passwordAlgo).
		Set("last_password_change", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update subject password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// AddProvider links a provider identity to the subject, updating the
// provider-assigned id when the provider is already linked.
func (r *SubjectRepository) AddProvider(ctx context.Context, id string, provider string, providerID string) error {
	stmt, args, err := r.builder.Insert("stepup.subject_providers").
		Columns("subject_id", "provider", "provider_id", "linked_at").
		Values(id, provider, providerID, time.Now().UTC()).
		Suffix("ON CONFLICT (subject_id, provider) DO UPDATE SET provider_id = EXCLUDED.provider_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert provider sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert subject provider: %w", err)
	}

	return nil
}

// RemoveProvider unlinks a provider identity from the subject.
func (r *SubjectRepository) RemoveProvider(ctx context.Context, id string, provider string) error {
	stmt, args, err := r.builder.Delete("stepup.subject_providers").
		Where(squirrel.Eq{"subject_id": id, "provider": provider}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete provider sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete subject provider: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.SubjectRepository = (*SubjectRepository)(nil)
