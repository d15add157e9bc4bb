package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
	"github.com/terra-clan/psv-academy/internal/storage"
)

func TestCleanupEnforcesRetention(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		i := i
		_, err := repo.RecordProgress(ctx, "learner-1", func(p *models.Profile, _ []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error) {
			return p, &models.AttemptRecord{
				ID:         string(rune('a' + i)),
				ProfileID:  "learner-1",
				ScenarioID: "gas-flare-01",
				Timestamp:  now.Add(time.Duration(i) * time.Minute),
				Score:      50 + i,
			}, nil
		})
		if err != nil {
			t.Fatalf("RecordProgress failed: %v", err)
		}
	}

	stale := &models.Draft{ProfileID: "learner-1", ScenarioID: "gas-flare-01", UpdatedAt: now.Add(-48 * time.Hour)}
	fresh := &models.Draft{ProfileID: "learner-1", ScenarioID: "vessel-fire-01", UpdatedAt: now.Add(-time.Hour)}
	for _, d := range []*models.Draft{stale, fresh} {
		if err := repo.SaveDraft(ctx, d); err != nil {
			t.Fatalf("SaveDraft failed: %v", err)
		}
	}

	c := NewCleaner(repo, time.Minute, 2, 24*time.Hour)
	c.now = func() time.Time { return now }
	c.Cleanup(ctx)

	attempts, err := repo.ListAttempts(ctx, models.AttemptFilters{ProfileID: "learner-1"})
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts kept, got %d", len(attempts))
	}
	if attempts[0].ID != "d" || attempts[1].ID != "c" {
		t.Errorf("expected newest attempts kept, got %s, %s", attempts[0].ID, attempts[1].ID)
	}

	if _, err := repo.GetDraft(ctx, "learner-1", "gas-flare-01"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected stale draft removed, got %v", err)
	}
	if _, err := repo.GetDraft(ctx, "learner-1", "vessel-fire-01"); err != nil {
		t.Errorf("expected fresh draft kept, got %v", err)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	repo := storage.NewMemoryRepository()
	c := NewCleaner(repo, 0, 0, 0)
	if c.interval != 15*time.Minute || c.keepPerScenario != 10 {
		t.Fatalf("expected defaults, got interval=%v keep=%d", c.interval, c.keepPerScenario)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
