package progression

import (
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
)

// RecentAttemptWindow bounds the attempt ids remembered for duplicate detection
const RecentAttemptWindow = 50

// Hard mode qualification
const (
	QualifyingScore    = 85
	QualifyingAttempts = 3
)

type rankThreshold struct {
	minXP int
	rank  string
}

var ranks = []rankThreshold{
	{1000, models.RankPrincipal},
	{500, models.RankSenior},
	{200, models.RankEngineer},
	{0, models.RankApprentice},
}

// RankFor derives the rank title from total XP
func RankFor(xp int) string {
	for _, r := range ranks {
		if xp >= r.minXP {
			return r.rank
		}
	}
	return models.RankApprentice
}

// AttemptInput is one graded attempt to fold into a profile
type AttemptInput struct {
	AttemptID string
	Result    *models.GradeResult
	// History is the learner's earlier attempts, newest first
	History []models.AttemptRecord
}

// Update is the outcome of applying an attempt
type Update struct {
	Profile          *models.Profile
	NewBadges        []models.Badge
	RankUp           bool
	HardModeUnlocked bool
	// Duplicate is set when the attempt id was already applied; Profile is then unchanged
	Duplicate bool
}

// Tracker folds graded attempts into learner profiles. It holds no per-learner state.
type Tracker struct {
	badges []BadgeDef
	now    func() time.Time
}

type Option func(*Tracker)

// WithBadges replaces the default badge catalogue
func WithBadges(badges []BadgeDef) Option {
	return func(t *Tracker) { t.badges = badges }
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker with the default badge catalogue
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		badges: DefaultBadges(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Apply returns an updated copy of prior with the attempt folded in. prior is not modified.
func (t *Tracker) Apply(prior *models.Profile, in AttemptInput) *Update {
	now := t.now().UTC()
	if prior == nil {
		prior = models.NewProfile("", now)
	}
	p := prior.Clone()

	if in.Result == nil || (in.AttemptID != "" && contains(p.RecentAttemptIDs, in.AttemptID)) {
		return &Update{Profile: p, NewBadges: []models.Badge{}, Duplicate: in.Result != nil}
	}
	res := in.Result

	p.XP += res.PointsEarned
	p.Rank = RankFor(p.XP)
	rankUp := rankIndex(p.Rank) > rankIndex(RankFor(prior.XP))

	if !contains(p.CompletedScenarios, res.ScenarioID) {
		p.CompletedScenarios = append(p.CompletedScenarios, res.ScenarioID)
	}
	p.ScenarioAttempts[res.ScenarioID]++
	if best, ok := p.ScenarioBestScores[res.ScenarioID]; !ok || res.Score > best {
		p.ScenarioBestScores[res.ScenarioID] = res.Score
	}

	fresh := append(append([]string{}, res.Mistakes...), res.CriticalMistakes...)
	p.MistakeBank = mergeMistakes(fresh, p.MistakeBank)

	unlocked := false
	if !p.HardModeProgress.IsUnlocked && res.Mode == models.ModeStandard && res.Score >= QualifyingScore {
		p.HardModeProgress.QualifyingAttempts++
		if p.HardModeProgress.QualifyingAttempts >= QualifyingAttempts {
			p.HardModeProgress.IsUnlocked = true
			at := now
			p.HardModeProgress.UnlockedAt = &at
			unlocked = true
		}
	}

	ctx := BadgeContext{
		Result:           res,
		Prior:            prior,
		History:          in.History,
		HardModeUnlocked: unlocked,
	}
	newBadges := []models.Badge{}
	for _, def := range t.badges {
		if p.HasBadge(def.ID) || def.Predicate == nil || !def.Predicate(ctx) {
			continue
		}
		b := models.Badge{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			EarnedAt:    now,
		}
		p.Badges = append(p.Badges, b)
		newBadges = append(newBadges, b)
	}

	if in.AttemptID != "" {
		p.RecentAttemptIDs = append(p.RecentAttemptIDs, in.AttemptID)
		if n := len(p.RecentAttemptIDs); n > RecentAttemptWindow {
			p.RecentAttemptIDs = p.RecentAttemptIDs[n-RecentAttemptWindow:]
		}
	}
	p.UpdatedAt = now

	return &Update{
		Profile:          p,
		NewBadges:        newBadges,
		RankUp:           rankUp,
		HardModeUnlocked: unlocked,
	}
}

// mergeMistakes puts fresh distinct mistakes ahead of older ones, bounded by MistakeBankSize
func mergeMistakes(fresh, older []string) []string {
	out := make([]string, 0, models.MistakeBankSize)
	for _, m := range append(fresh, older...) {
		if len(out) == models.MistakeBankSize {
			break
		}
		if m == "" || contains(out, m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func rankIndex(rank string) int {
	for i, r := range ranks {
		if r.rank == rank {
			return len(ranks) - i
		}
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
