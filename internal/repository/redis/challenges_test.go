package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/repository"
)

func testChallenge(id string) domain.ActionChallenge {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return domain.ActionChallenge{
		ID:        id,
		SubjectID: "sub-1",
		Action:    domain.ActionUnlinkProvider,
		Method:    domain.MethodPassword,
		State:     domain.ChallengeRequested,
		Payload:   domain.ChallengePayload{Provider: "google"},
		CreatedAt: created,
		ExpiresAt: created.Add(15 * time.Minute),
	}
}

func TestChallengeRepository_SaveAndFetch(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewChallengeRepository(client, "test:challenge")

	challenge := testChallenge("ch-1")
	if err := repo.Save(context.Background(), challenge, 15*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	fetched, err := repo.Fetch(context.Background(), "sub-1", domain.ActionUnlinkProvider)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.ID != "ch-1" || fetched.Payload.Provider != "google" {
		t.Fatalf("unexpected challenge %+v", fetched)
	}
	if !fetched.ExpiresAt.Equal(challenge.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", challenge.ExpiresAt, fetched.ExpiresAt)
	}
}

func TestChallengeRepository_FetchMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewChallengeRepository(client, "test:challenge")

	if _, err := repo.Fetch(context.Background(), "sub-1", domain.ActionDeactivate); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChallengeRepository_RemoveIDMatched(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewChallengeRepository(client, "test:challenge")

	if err := repo.Save(context.Background(), testChallenge("ch-1"), 15*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// A stale id cannot remove the live challenge.
	if err := repo.Remove(context.Background(), "sub-1", domain.ActionUnlinkProvider, "ch-0"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stale id, got %v", err)
	}
	if _, err := repo.Fetch(context.Background(), "sub-1", domain.ActionUnlinkProvider); err != nil {
		t.Fatalf("challenge must survive a stale remove: %v", err)
	}

	if err := repo.Remove(context.Background(), "sub-1", domain.ActionUnlinkProvider, "ch-1"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := repo.Remove(context.Background(), "sub-1", domain.ActionUnlinkProvider, "ch-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat remove, got %v", err)
	}
}

func TestChallengeRepository_SaveSupersedes(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewChallengeRepository(client, "test:challenge")

	if err := repo.Save(context.Background(), testChallenge("ch-1"), 15*time.Minute); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := repo.Save(context.Background(), testChallenge("ch-2"), 15*time.Minute); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	fetched, err := repo.Fetch(context.Background(), "sub-1", domain.ActionUnlinkProvider)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if fetched.ID != "ch-2" {
		t.Fatalf("expected superseding challenge, got %s", fetched.ID)
	}

	if err := repo.Remove(context.Background(), "sub-1", domain.ActionUnlinkProvider, "ch-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected superseded id rejected, got %v", err)
	}
}
