package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testCode(id, value string) domain.OneTimeCode {
	issued := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.OneTimeCode{
		ID:          id,
		SubjectID:   "sub-1",
		Purpose:     domain.CodePurposeSecurity,
		Destination: "person@example.com",
		Code:        value,
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(10 * time.Minute),
	}
}

func TestCodeRepository_SaveAndFetch(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	code := testCode("code-1", "482913")
	if err := repo.Save(context.Background(), code, 10*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	fetched, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.ID != "code-1" || fetched.Code != "482913" {
		t.Fatalf("unexpected code %+v", fetched)
	}
	if fetched.Consumed() {
		t.Fatal("fresh code must not be consumed")
	}
	if !fetched.ExpiresAt.Equal(code.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", code.ExpiresAt, fetched.ExpiresAt)
	}
}

func TestCodeRepository_FetchMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	if _, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCodeRepository_SaveSupersedes(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	if err := repo.Save(context.Background(), testCode("code-1", "111111"), 10*time.Minute); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := repo.Save(context.Background(), testCode("code-2", "222222"), 10*time.Minute); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	fetched, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.ID != "code-2" {
		t.Fatalf("expected superseding code, got %s", fetched.ID)
	}

	// The superseded id can no longer be consumed.
	if err := repo.Consume(context.Background(), "sub-1", domain.CodePurposeSecurity, "code-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stale id, got %v", err)
	}
}

func TestCodeRepository_ConsumeOnce(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")
	repo.WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC) })

	if err := repo.Save(context.Background(), testCode("code-1", "482913"), 10*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := repo.Consume(context.Background(), "sub-1", domain.CodePurposeSecurity, "code-1"); err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if err := repo.Consume(context.Background(), "sub-1", domain.CodePurposeSecurity, "code-1"); !errors.Is(err, repository.ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}

	// The tombstone is visible on fetch.
	fetched, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if !fetched.Consumed() {
		t.Fatal("expected consumed code")
	}
}

func TestCodeRepository_IncrementAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	if err := repo.Save(context.Background(), testCode("code-1", "482913"), 10*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementAttempts(context.Background(), "sub-1", domain.CodePurposeSecurity)
		if err != nil {
			t.Fatalf("IncrementAttempts returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d attempts, got %d", want, got)
		}
	}

	if _, err := repo.IncrementAttempts(context.Background(), "ghost", domain.CodePurposeSecurity); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCodeRepository_Invalidate(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	if err := repo.Save(context.Background(), testCode("code-1", "482913"), 10*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := repo.Invalidate(context.Background(), "sub-1", domain.CodePurposeSecurity); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}
	if _, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after invalidate, got %v", err)
	}

	// Absence is not an error.
	if err := repo.Invalidate(context.Background(), "sub-1", domain.CodePurposeSecurity); err != nil {
		t.Fatalf("Invalidate on missing key: %v", err)
	}
}

func TestCodeRepository_TTLExpiry(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewCodeRepository(client, "test:code")

	if err := repo.Save(context.Background(), testCode("code-1", "482913"), time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, err := repo.Fetch(context.Background(), "sub-1", domain.CodePurposeSecurity); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}
