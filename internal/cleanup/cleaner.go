package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/psv-academy/internal/storage"
)

// Cleaner enforces attempt and draft retention
type Cleaner struct {
	repo            storage.Repository
	interval        time.Duration
	keepPerScenario int
	draftTTL        time.Duration
	now             func() time.Time
}

// NewCleaner creates a new retention worker
func NewCleaner(repo storage.Repository, interval time.Duration, keepPerScenario int, draftTTL time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if keepPerScenario <= 0 {
		keepPerScenario = 10
	}

	return &Cleaner{
		repo:            repo,
		interval:        interval,
		keepPerScenario: keepPerScenario,
		draftTTL:        draftTTL,
		now:             time.Now,
	}
}

// Start begins the retention worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the retention worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("retention worker started",
		"interval", c.interval,
		"keep_per_scenario", c.keepPerScenario,
		"draft_ttl", c.draftTTL,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.Cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention worker stopped")
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup runs one retention cycle
func (c *Cleaner) Cleanup(ctx context.Context) {
	slog.Debug("running retention cycle")

	pruned, err := c.repo.PruneAttempts(ctx, c.keepPerScenario)
	if err != nil {
		slog.Error("failed to prune attempts", "error", err)
	} else if pruned > 0 {
		slog.Info("pruned attempts", "count", pruned)
	}

	// A zero TTL keeps drafts forever
	if c.draftTTL <= 0 {
		return
	}
	cutoff := c.now().UTC().Add(-c.draftTTL)
	expired, err := c.repo.DeleteDraftsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to delete expired drafts", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("expired drafts deleted", "count", expired, "cutoff", cutoff)
	}
}
