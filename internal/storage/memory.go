package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
)

// MemoryRepository implements Repository in process memory. Used for tests and local runs.
type MemoryRepository struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	attempts []*models.AttemptRecord
	drafts   map[string]*models.Draft
	clients  map[string]*models.ApiClient
	nextID   int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles: make(map[string]*models.Profile),
		drafts:   make(map[string]*models.Draft),
		clients:  make(map[string]*models.ApiClient),
	}
}

func draftKey(profileID, scenarioID string) string {
	return profileID + "\x00" + scenarioID
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

// GetProfile returns a copy of the stored profile
func (r *MemoryRepository) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// SaveProfile stores a copy of p
func (r *MemoryRepository) SaveProfile(ctx context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p.Clone()
	return nil
}

// DeleteProfile removes a profile together with its attempts and drafts
func (r *MemoryRepository) DeleteProfile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return ErrNotFound
	}
	delete(r.profiles, id)

	kept := r.attempts[:0]
	for _, a := range r.attempts {
		if a.ProfileID != id {
			kept = append(kept, a)
		}
	}
	r.attempts = kept

	for k, d := range r.drafts {
		if d.ProfileID == id {
			delete(r.drafts, k)
		}
	}
	return nil
}

// TopProfiles returns the highest-XP profiles
func (r *MemoryRepository) TopProfiles(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.LeaderboardEntry, 0, len(r.profiles))
	for _, p := range r.profiles {
		entries = append(entries, models.LeaderboardEntry{ProfileID: p.ID, XP: p.XP})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].ProfileID < entries[j].ProfileID
	})
	if n := listLimit(limit); len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries, nil
}

// RecordProgress holds the repository lock for the duration of fn
func (r *MemoryRepository) RecordProgress(ctx context.Context, profileID string, fn ProgressFunc) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.profiles[profileID]
	if ok {
		current = current.Clone()
	} else {
		current = models.NewProfile(profileID, time.Now().UTC())
	}

	history := derefAttempts(r.listAttemptsLocked(models.AttemptFilters{ProfileID: profileID, Limit: HistoryLimit}))
	updated, attempt, err := fn(current, history)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return current, nil
	}

	r.profiles[profileID] = updated.Clone()
	a := *attempt
	r.attempts = append(r.attempts, &a)
	return updated, nil
}

// GetAttempt retrieves an attempt by ID
func (r *MemoryRepository) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attempts {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// ListAttempts returns attempts newest first
func (r *MemoryRepository) ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listAttemptsLocked(filters), nil
}

func (r *MemoryRepository) listAttemptsLocked(filters models.AttemptFilters) []*models.AttemptRecord {
	result := []*models.AttemptRecord{}
	for _, a := range r.attempts {
		if filters.ProfileID != "" && a.ProfileID != filters.ProfileID {
			continue
		}
		if filters.ScenarioID != "" && a.ScenarioID != filters.ScenarioID {
			continue
		}
		c := *a
		result = append(result, &c)
	}
	sortNewestFirst(result)
	if n := listLimit(filters.Limit); len(result) > n {
		result = result[:n]
	}
	return result
}

func sortNewestFirst(attempts []*models.AttemptRecord) {
	sort.SliceStable(attempts, func(i, j int) bool {
		if !attempts[i].Timestamp.Equal(attempts[j].Timestamp) {
			return attempts[i].Timestamp.After(attempts[j].Timestamp)
		}
		return attempts[i].ID > attempts[j].ID
	})
}

// PruneAttempts keeps only the newest keepPerScenario attempts of each (profile, scenario)
func (r *MemoryRepository) PruneAttempts(ctx context.Context, keepPerScenario int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := append([]*models.AttemptRecord{}, r.attempts...)
	sortNewestFirst(ordered)

	seen := make(map[string]int)
	kept := make([]*models.AttemptRecord, 0, len(ordered))
	var removed int64
	for _, a := range ordered {
		key := draftKey(a.ProfileID, a.ScenarioID)
		seen[key]++
		if seen[key] > keepPerScenario {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.attempts = kept
	return removed, nil
}

// SaveDraft inserts or replaces the draft for (profile, scenario)
func (r *MemoryRepository) SaveDraft(ctx context.Context, d *models.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *d
	r.drafts[draftKey(d.ProfileID, d.ScenarioID)] = &c
	return nil
}

// GetDraft retrieves the draft for (profile, scenario)
func (r *MemoryRepository) GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drafts[draftKey(profileID, scenarioID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

// DeleteDraft removes the draft for (profile, scenario)
func (r *MemoryRepository) DeleteDraft(ctx context.Context, profileID, scenarioID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := draftKey(profileID, scenarioID)
	if _, ok := r.drafts[key]; !ok {
		return ErrNotFound
	}
	delete(r.drafts, key)
	return nil
}

// DeleteDraftsBefore removes drafts not updated since cutoff
func (r *MemoryRepository) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for k, d := range r.drafts {
		if d.UpdatedAt.Before(cutoff) {
			delete(r.drafts, k)
			removed++
		}
	}
	return removed, nil
}

// CreateClient registers a new API client
func (r *MemoryRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[c.KeyID]; exists {
		return fmt.Errorf("failed to create api client: key id %s already exists", c.KeyID)
	}
	r.nextID++
	c.ID = r.nextID
	stored := *c
	r.clients[c.KeyID] = &stored
	return nil
}

// GetClientByKeyID retrieves an API client by the public part of its key
func (r *MemoryRepository) GetClientByKeyID(ctx context.Context, keyID string) (*models.ApiClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[keyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// UpdateClientLastUsed updates the last used timestamp
func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[keyID]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}
