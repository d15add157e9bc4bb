package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// HistoryLimit bounds the attempt history handed to ProgressFunc
const HistoryLimit = 100

// ProgressFunc computes the next profile state from the current one inside the progress transaction.
// current is never nil (a fresh profile is supplied for unknown ids); history is newest first.
// Returning a nil attempt leaves storage untouched.
type ProgressFunc func(current *models.Profile, history []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error)

// Repository defines the interface for academy persistence
type Repository interface {
	// Profiles
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SaveProfile(ctx context.Context, p *models.Profile) error
	DeleteProfile(ctx context.Context, id string) error
	TopProfiles(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)

	// RecordProgress runs fn as one atomic read-modify-write of the profile and
	// appends the returned attempt in the same transaction.
	RecordProgress(ctx context.Context, profileID string, fn ProgressFunc) (*models.Profile, error)

	// Attempts
	GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error)
	ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error)
	PruneAttempts(ctx context.Context, keepPerScenario int) (int64, error)

	// Drafts
	SaveDraft(ctx context.Context, d *models.Draft) error
	GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error)
	DeleteDraft(ctx context.Context, profileID, scenarioID string) error
	DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// API Clients
	CreateClient(ctx context.Context, c *models.ApiClient) error
	GetClientByKeyID(ctx context.Context, keyID string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, keyID string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
