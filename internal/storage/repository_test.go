package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
)

// repositories returns every implementation that runs without external services
func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqlite, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "academy.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqlite,
	}
}

func attempt(id, profileID, scenarioID string, at time.Time, score int) *models.AttemptRecord {
	return &models.AttemptRecord{
		ID:           id,
		ProfileID:    profileID,
		ScenarioID:   scenarioID,
		Timestamp:    at,
		Score:        score,
		PointsEarned: score,
		Breakdown:    models.ScoreBreakdown{DatasheetQuality: 30, Total: score},
		Answers:      models.PlayerAnswers{RelievingCase: models.CaseBlockedOutlet, ValveStyle: models.StyleConventional, OrificeLetter: "H"},
		Datasheet:    models.Datasheet{SetPressure: models.Float(150), DischargeTo: models.DischargeFlare},
		Mode:         models.ModeStandard,
	}
}

// record appends a and adds its points to the profile
func record(ctx context.Context, repo Repository, a *models.AttemptRecord) (*models.Profile, error) {
	return repo.RecordProgress(ctx, a.ProfileID, func(current *models.Profile, history []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error) {
		next := current.Clone()
		next.XP += a.PointsEarned
		next.ScenarioAttempts[a.ScenarioID]++
		next.UpdatedAt = a.Timestamp
		return next, a, nil
	})
}

func TestRepositoryProfiles(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.GetProfile(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			now := time.Now().UTC()
			p := models.NewProfile("learner-1", now)
			p.XP = 320
			p.Rank = models.RankEngineer
			p.Badges = append(p.Badges, models.Badge{ID: "first_attempt", Name: "First", EarnedAt: now})
			p.ScenarioBestScores["gas-01"] = 88
			if err := repo.SaveProfile(ctx, p); err != nil {
				t.Fatalf("SaveProfile failed: %v", err)
			}

			got, err := repo.GetProfile(ctx, "learner-1")
			if err != nil {
				t.Fatalf("GetProfile failed: %v", err)
			}
			if got.XP != 320 || got.Rank != models.RankEngineer || !got.HasBadge("first_attempt") || got.ScenarioBestScores["gas-01"] != 88 {
				t.Errorf("unexpected profile: %+v", got)
			}

			other := models.NewProfile("learner-2", now)
			other.XP = 900
			if err := repo.SaveProfile(ctx, other); err != nil {
				t.Fatalf("SaveProfile failed: %v", err)
			}
			top, err := repo.TopProfiles(ctx, 10)
			if err != nil {
				t.Fatalf("TopProfiles failed: %v", err)
			}
			if len(top) != 2 || top[0].ProfileID != "learner-2" || top[0].Position != 1 || top[1].XP != 320 {
				t.Errorf("unexpected leaderboard: %+v", top)
			}
		})
	}
}

func TestRepositoryRecordProgress(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			p, err := record(ctx, repo, attempt("a1", "learner-1", "gas-01", base, 70))
			if err != nil {
				t.Fatalf("RecordProgress failed: %v", err)
			}
			if p.XP != 70 {
				t.Errorf("expected 70 XP, got %d", p.XP)
			}

			var seenHistory int
			_, err = repo.RecordProgress(ctx, "learner-1", func(current *models.Profile, history []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error) {
				seenHistory = len(history)
				return current, nil, nil
			})
			if err != nil {
				t.Fatalf("RecordProgress failed: %v", err)
			}
			if seenHistory != 1 {
				t.Errorf("expected 1 attempt in history, got %d", seenHistory)
			}

			boom := errors.New("boom")
			_, err = repo.RecordProgress(ctx, "learner-1", func(current *models.Profile, history []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error) {
				return nil, nil, boom
			})
			if !errors.Is(err, boom) {
				t.Errorf("expected callback error, got %v", err)
			}

			got, err := repo.GetAttempt(ctx, "a1")
			if err != nil {
				t.Fatalf("GetAttempt failed: %v", err)
			}
			if !got.Timestamp.Equal(base) || got.Answers.OrificeLetter != "H" || *got.Datasheet.SetPressure != 150 {
				t.Errorf("unexpected attempt: %+v", got)
			}
			if _, err := repo.GetAttempt(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRepositoryRecordProgressIsAtomic(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					a := attempt(fmt.Sprintf("c%d", i), "learner-1", "gas-01", base.Add(time.Duration(i)*time.Second), 10)
					if _, err := record(ctx, repo, a); err != nil {
						errs <- err
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("RecordProgress failed: %v", err)
			}

			p, err := repo.GetProfile(ctx, "learner-1")
			if err != nil {
				t.Fatalf("GetProfile failed: %v", err)
			}
			if p.XP != workers*10 || p.ScenarioAttempts["gas-01"] != workers {
				t.Errorf("lost updates: xp=%d attempts=%d", p.XP, p.ScenarioAttempts["gas-01"])
			}
		})
	}
}

func TestRepositoryAttemptsAndPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 12; i++ {
				if _, err := record(ctx, repo, attempt(fmt.Sprintf("g%02d", i), "learner-1", "gas-01", base.Add(time.Duration(i)*time.Minute), i)); err != nil {
					t.Fatalf("record failed: %v", err)
				}
			}
			for i := 0; i < 3; i++ {
				if _, err := record(ctx, repo, attempt(fmt.Sprintf("l%02d", i), "learner-1", "liq-01", base.Add(time.Duration(i)*time.Minute), i)); err != nil {
					t.Fatalf("record failed: %v", err)
				}
			}

			list, err := repo.ListAttempts(ctx, models.AttemptFilters{ProfileID: "learner-1", ScenarioID: "gas-01", Limit: 5})
			if err != nil {
				t.Fatalf("ListAttempts failed: %v", err)
			}
			if len(list) != 5 || list[0].ID != "g11" {
				t.Errorf("expected newest first, got %d items starting %s", len(list), list[0].ID)
			}

			removed, err := repo.PruneAttempts(ctx, 10)
			if err != nil {
				t.Fatalf("PruneAttempts failed: %v", err)
			}
			if removed != 2 {
				t.Errorf("expected 2 pruned, got %d", removed)
			}

			all, err := repo.ListAttempts(ctx, models.AttemptFilters{ProfileID: "learner-1", Limit: 100})
			if err != nil {
				t.Fatalf("ListAttempts failed: %v", err)
			}
			if len(all) != 13 {
				t.Errorf("expected 13 remaining, got %d", len(all))
			}
			if _, err := repo.GetAttempt(ctx, "g00"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected oldest attempt pruned, got %v", err)
			}

			if err := repo.DeleteProfile(ctx, "learner-1"); err != nil {
				t.Fatalf("DeleteProfile failed: %v", err)
			}
			all, _ = repo.ListAttempts(ctx, models.AttemptFilters{ProfileID: "learner-1"})
			if len(all) != 0 {
				t.Errorf("expected attempts removed with profile, got %d", len(all))
			}
			if err := repo.DeleteProfile(ctx, "learner-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestRepositoryDrafts(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			d := &models.Draft{
				ProfileID:  "learner-1",
				ScenarioID: "gas-01",
				Datasheet:  models.Datasheet{Tag: "PSV-7", MolecularWeight: models.Float(28)},
				UpdatedAt:  now,
			}
			if err := repo.SaveDraft(ctx, d); err != nil {
				t.Fatalf("SaveDraft failed: %v", err)
			}
			d.Datasheet.Notes = "revised"
			if err := repo.SaveDraft(ctx, d); err != nil {
				t.Fatalf("SaveDraft overwrite failed: %v", err)
			}

			got, err := repo.GetDraft(ctx, "learner-1", "gas-01")
			if err != nil {
				t.Fatalf("GetDraft failed: %v", err)
			}
			if got.Datasheet.Notes != "revised" || got.Datasheet.Tag != "PSV-7" {
				t.Errorf("unexpected draft: %+v", got.Datasheet)
			}

			stale := &models.Draft{ProfileID: "learner-1", ScenarioID: "liq-01", UpdatedAt: now.Add(-72 * time.Hour)}
			if err := repo.SaveDraft(ctx, stale); err != nil {
				t.Fatalf("SaveDraft failed: %v", err)
			}
			removed, err := repo.DeleteDraftsBefore(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("DeleteDraftsBefore failed: %v", err)
			}
			if removed != 1 {
				t.Errorf("expected 1 stale draft removed, got %d", removed)
			}

			if err := repo.DeleteDraft(ctx, "learner-1", "gas-01"); err != nil {
				t.Fatalf("DeleteDraft failed: %v", err)
			}
			if _, err := repo.GetDraft(ctx, "learner-1", "gas-01"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRepositoryClients(t *testing.T) {
	ctx := context.Background()

	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			c := &models.ApiClient{
				Name:        "lms-frontend",
				KeyID:       "k1",
				SecretHash:  "$2a$10$hash",
				IsActive:    true,
				CreatedAt:   time.Now().UTC(),
				Permissions: []string{"profiles:*"},
			}
			if err := repo.CreateClient(ctx, c); err != nil {
				t.Fatalf("CreateClient failed: %v", err)
			}
			if c.ID == 0 {
				t.Error("expected id to be assigned")
			}

			got, err := repo.GetClientByKeyID(ctx, "k1")
			if err != nil {
				t.Fatalf("GetClientByKeyID failed: %v", err)
			}
			if !got.IsActive || got.SecretHash != c.SecretHash || !got.HasPermission("profiles:write") {
				t.Errorf("unexpected client: %+v", got)
			}
			if got.LastUsedAt != nil {
				t.Error("expected no last used timestamp yet")
			}

			if err := repo.UpdateClientLastUsed(ctx, "k1"); err != nil {
				t.Fatalf("UpdateClientLastUsed failed: %v", err)
			}
			got, _ = repo.GetClientByKeyID(ctx, "k1")
			if got.LastUsedAt == nil {
				t.Error("expected last used timestamp")
			}

			if _, err := repo.GetClientByKeyID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
