package academy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/psv-academy/internal/events"
	"github.com/terra-clan/psv-academy/internal/grading"
	"github.com/terra-clan/psv-academy/internal/models"
	"github.com/terra-clan/psv-academy/internal/progression"
	"github.com/terra-clan/psv-academy/internal/storage"
)

// Common errors
var (
	ErrScenarioNotFound    = errors.New("scenario not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrDraftNotFound       = errors.New("draft not found")
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrInvalidProfileID    = errors.New("profile id is required")
	ErrHardModeLocked      = errors.New("hard mode is locked for this profile")
	ErrNotHardEligible     = errors.New("scenario is not eligible for hard mode")
	ErrDuplicateSubmission = errors.New("submission already recorded")
)

// DefaultIdempotencyTTL is how long an Idempotency-Key stays claimed
const DefaultIdempotencyTTL = 24 * time.Hour

// Manager defines the interface for the grading and progression service
type Manager interface {
	Grade(ctx context.Context, req models.GradeRequest) (*models.GradeResult, error)
	Submit(ctx context.Context, profileID, idempotencyKey string, req models.GradeRequest) (*models.SubmitResponse, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ResetProfile(ctx context.Context, id string) error
	GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error)
	ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error)
	SaveDraft(ctx context.Context, profileID, scenarioID string, ds models.Datasheet) (*models.Draft, error)
	GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error)
	DeleteDraft(ctx context.Context, profileID, scenarioID string) error
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	Catalog() Catalog
	Ping(ctx context.Context) error
}

// Catalog is the read side of the authored content
type Catalog interface {
	ListTracks() []*models.Track
	GetTrack(id string) *models.Track
	ListScenarios(trackID string) []*models.Scenario
	GetScenario(id string) *models.Scenario
	Lookup(scenarioID string) (*models.Scenario, *models.Outcome, bool)
}

// Leaderboard ranks profiles by XP outside the primary store
type Leaderboard interface {
	SetXP(ctx context.Context, profileID string, xp int) error
	Remove(ctx context.Context, profileID string) error
	Top(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// IdempotencyStore claims client-supplied submission keys
type IdempotencyStore interface {
	Claim(ctx context.Context, profileID, key string, ttl time.Duration) (bool, string, error)
	Complete(ctx context.Context, profileID, key, attemptID string, ttl time.Duration) error
	Release(ctx context.Context, profileID, key string) error
}

// Publisher forwards events to other instances; its subscribers feed the local hub
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
}

// Service implements Manager
type Service struct {
	repo           storage.Repository
	catalog        Catalog
	hub            *events.Hub
	engine         *grading.Engine
	tracker        *progression.Tracker
	leaderboard    Leaderboard
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	publisher      Publisher
	now            func() time.Time
}

type Option func(*Service)

// WithEngine overrides the grading engine
func WithEngine(e *grading.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithTracker overrides the progression tracker
func WithTracker(t *progression.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithLeaderboard serves and maintains the leaderboard from lb instead of the repository
func WithLeaderboard(lb Leaderboard) Option {
	return func(s *Service) { s.leaderboard = lb }
}

// WithIdempotency enables Idempotency-Key handling
func WithIdempotency(store IdempotencyStore, ttl time.Duration) Option {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithPublisher routes events through p instead of straight to the local hub
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the academy service
func NewService(repo storage.Repository, catalog Catalog, hub *events.Hub, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		catalog:        catalog,
		hub:            hub,
		engine:         grading.NewEngine(),
		tracker:        progression.NewTracker(),
		idempotencyTTL: DefaultIdempotencyTTL,
		now:            time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) lookup(scenarioID string, mode models.Mode) (*models.Scenario, *models.Outcome, error) {
	sc, oc, ok := s.catalog.Lookup(strings.TrimSpace(scenarioID))
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioID)
	}
	if mode == models.ModeHard && !sc.IsHardEligible {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotHardEligible, sc.ID)
	}
	return sc, oc, nil
}

func gradeInput(sc *models.Scenario, oc *models.Outcome, req models.GradeRequest, mode models.Mode) grading.Input {
	return grading.Input{
		Scenario:        sc,
		Outcome:         oc,
		Datasheet:       req.Datasheet,
		Answers:         req.Answers,
		Mode:            mode,
		ExplanationText: req.ExplanationText,
		Telemetry:       req.Telemetry,
	}
}

// Grade scores a request without recording anything
func (s *Service) Grade(ctx context.Context, req models.GradeRequest) (*models.GradeResult, error) {
	mode := req.Mode.Normalize()
	sc, oc, err := s.lookup(req.ScenarioID, mode)
	if err != nil {
		return nil, err
	}
	return s.engine.Grade(gradeInput(sc, oc, req, mode))
}

// Submit grades a request and folds it into the learner's profile atomically
func (s *Service) Submit(ctx context.Context, profileID, idempotencyKey string, req models.GradeRequest) (*models.SubmitResponse, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidProfileID
	}
	mode := req.Mode.Normalize()
	sc, oc, err := s.lookup(req.ScenarioID, mode)
	if err != nil {
		return nil, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	claimed := false
	if s.idempotency != nil && idempotencyKey != "" {
		ok, existing, err := s.idempotency.Claim(ctx, profileID, idempotencyKey, s.idempotencyTTL)
		if err != nil {
			// Degrade to the profile's own attempt-id window
			slog.Warn("failed to claim idempotency key", "profile_id", profileID, "error", err)
		} else if !ok {
			return nil, fmt.Errorf("%w: attempt %q", ErrDuplicateSubmission, existing)
		} else {
			claimed = true
		}
	}

	attemptID := uuid.New().String()[:12]
	var (
		result *models.GradeResult
		update *progression.Update
	)

	profile, err := s.repo.RecordProgress(ctx, profileID, func(current *models.Profile, history []models.AttemptRecord) (*models.Profile, *models.AttemptRecord, error) {
		if mode == models.ModeHard && !current.HardModeProgress.IsUnlocked {
			return nil, nil, ErrHardModeLocked
		}

		in := gradeInput(sc, oc, req, mode)
		if in.Telemetry.AttemptNumber <= 0 {
			in.Telemetry.AttemptNumber = current.ScenarioAttempts[sc.ID] + 1
		}

		res, err := s.engine.Grade(in)
		if err != nil {
			return nil, nil, err
		}

		upd := s.tracker.Apply(current, progression.AttemptInput{
			AttemptID: attemptID,
			Result:    res,
			History:   history,
		})
		if upd.Duplicate {
			return nil, nil, fmt.Errorf("%w: attempt %q", ErrDuplicateSubmission, attemptID)
		}
		result, update = res, upd

		record := &models.AttemptRecord{
			ID:           attemptID,
			ProfileID:    profileID,
			ScenarioID:   sc.ID,
			Timestamp:    s.now().UTC(),
			Score:        res.Score,
			PointsEarned: res.PointsEarned,
			Breakdown:    res.Breakdown,
			Answers:      req.Answers,
			Datasheet:    req.Datasheet,
			Mode:         res.Mode,
		}
		return upd.Profile, record, nil
	})
	if err != nil {
		if claimed {
			if rerr := s.idempotency.Release(ctx, profileID, idempotencyKey); rerr != nil {
				slog.Warn("failed to release idempotency key", "profile_id", profileID, "error", rerr)
			}
		}
		return nil, err
	}

	if claimed {
		if err := s.idempotency.Complete(ctx, profileID, idempotencyKey, attemptID, s.idempotencyTTL); err != nil {
			slog.Warn("failed to complete idempotency key", "profile_id", profileID, "error", err)
		}
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.SetXP(ctx, profileID, profile.XP); err != nil {
			slog.Warn("failed to update leaderboard", "profile_id", profileID, "error", err)
		}
	}

	slog.Info("attempt recorded",
		"attempt_id", attemptID,
		"profile_id", profileID,
		"scenario_id", sc.ID,
		"mode", result.Mode,
		"score", result.Score,
		"points", result.PointsEarned,
	)
	s.publishUpdate(ctx, attemptID, result, update, profile)

	return &models.SubmitResponse{
		AttemptID: attemptID,
		Result:    *result,
		Profile:   profile,
		NewBadges: update.NewBadges,
		RankUp:    update.RankUp,
	}, nil
}

func (s *Service) publishUpdate(ctx context.Context, attemptID string, res *models.GradeResult, upd *progression.Update, p *models.Profile) {
	at := s.now().UTC()
	s.publish(ctx, models.Event{
		Type:      models.EventAttemptRecorded,
		ProfileID: p.ID,
		AttemptID: attemptID,
		Score:     res.Score,
		XP:        p.XP,
		Rank:      p.Rank,
		At:        at,
	})
	for i := range upd.NewBadges {
		b := upd.NewBadges[i]
		s.publish(ctx, models.Event{Type: models.EventBadgeEarned, ProfileID: p.ID, AttemptID: attemptID, Badge: &b, At: at})
	}
	if upd.RankUp {
		s.publish(ctx, models.Event{Type: models.EventRankUp, ProfileID: p.ID, AttemptID: attemptID, XP: p.XP, Rank: p.Rank, At: at})
	}
	if upd.HardModeUnlocked {
		s.publish(ctx, models.Event{Type: models.EventHardModeUnlock, ProfileID: p.ID, AttemptID: attemptID, At: at})
	}
}

func (s *Service) publish(ctx context.Context, e models.Event) {
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, e)
		if err == nil {
			return
		}
		slog.Warn("failed to publish event, delivering locally", "type", e.Type, "error", err)
	}
	if s.hub != nil {
		s.hub.Publish(e)
	}
}

// GetProfile returns a learner profile
func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ResetProfile deletes a profile with its attempts and drafts
func (s *Service) ResetProfile(ctx context.Context, id string) error {
	err := s.repo.DeleteProfile(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to reset profile: %w", err)
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Remove(ctx, id); err != nil {
			slog.Warn("failed to remove profile from leaderboard", "profile_id", id, "error", err)
		}
	}
	slog.Info("profile reset", "profile_id", id)
	s.publish(ctx, models.Event{Type: models.EventProfileReset, ProfileID: id, At: s.now().UTC()})
	return nil
}

// GetAttempt returns one recorded attempt
func (s *Service) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	a, err := s.repo.GetAttempt(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns attempt history, newest first
func (s *Service) ListAttempts(ctx context.Context, filters models.AttemptFilters) ([]*models.AttemptRecord, error) {
	attempts, err := s.repo.ListAttempts(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// SaveDraft stores an in-progress datasheet
func (s *Service) SaveDraft(ctx context.Context, profileID, scenarioID string, ds models.Datasheet) (*models.Draft, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, ErrInvalidProfileID
	}
	if s.catalog.GetScenario(scenarioID) == nil {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, scenarioID)
	}

	d := &models.Draft{
		ProfileID:  profileID,
		ScenarioID: scenarioID,
		Datasheet:  ds,
		UpdatedAt:  s.now().UTC(),
	}
	if err := s.repo.SaveDraft(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return d, nil
}

// GetDraft returns a saved draft
func (s *Service) GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error) {
	d, err := s.repo.GetDraft(ctx, profileID, scenarioID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

// DeleteDraft discards a saved draft
func (s *Service) DeleteDraft(ctx context.Context, profileID, scenarioID string) error {
	err := s.repo.DeleteDraft(ctx, profileID, scenarioID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrDraftNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Leaderboard returns the top profiles by XP
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if s.leaderboard != nil {
		entries, err := s.leaderboard.Top(ctx, limit)
		if err == nil {
			return entries, nil
		}
		slog.Warn("failed to read leaderboard, falling back to storage", "error", err)
	}

	entries, err := s.repo.TopProfiles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return entries, nil
}

// Catalog returns the scenario catalogue
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Ping checks the backing store
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
