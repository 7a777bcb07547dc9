package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Subjects  *SubjectRepository
	Deletions *DeletionRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Subjects:  NewSubjectRepository(pool),
		Deletions: NewDeletionRepository(pool),
	}
}
