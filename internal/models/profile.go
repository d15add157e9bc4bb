package models

import "time"

// Rank titles in ascending order
const (
	RankApprentice = "Apprentice"
	RankEngineer   = "Engineer"
	RankSenior     = "Senior Engineer"
	RankPrincipal  = "Principal Engineer"
)

// MistakeBankSize bounds the rolling list of recent distinct mistakes
const MistakeBankSize = 3

// Badge is an earned achievement
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// HardModeProgress tracks qualification toward the hard difficulty tier
type HardModeProgress struct {
	IsUnlocked         bool       `json:"isUnlocked"`
	QualifyingAttempts int        `json:"qualifyingAttempts"`
	UnlockedAt         *time.Time `json:"unlockedAt,omitempty"`
}

// Profile is the durable progression record of one learner
type Profile struct {
	ID                 string           `json:"id"`
	XP                 int              `json:"xp"`
	Rank               string           `json:"rank"`
	Badges             []Badge          `json:"badges"`
	MistakeBank        []string         `json:"mistakeBank"`
	CompletedScenarios []string         `json:"completedScenarios"`
	ScenarioAttempts   map[string]int   `json:"scenarioAttempts"`
	ScenarioBestScores map[string]int   `json:"scenarioBestScores"`
	HardModeProgress   HardModeProgress `json:"hardModeProgress"`
	RecentAttemptIDs   []string         `json:"recentAttemptIds,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// NewProfile returns a zeroed profile for a learner seen for the first time
func NewProfile(id string, now time.Time) *Profile {
	return &Profile{
		ID:                 id,
		Rank:               RankApprentice,
		Badges:             []Badge{},
		MistakeBank:        []string{},
		CompletedScenarios: []string{},
		ScenarioAttempts:   map[string]int{},
		ScenarioBestScores: map[string]int{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// HasBadge reports whether the badge was already earned
func (p *Profile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// TotalAttempts sums attempts over all scenarios
func (p *Profile) TotalAttempts() int {
	total := 0
	for _, n := range p.ScenarioAttempts {
		total += n
	}
	return total
}

// Clone returns a deep copy so callers can mutate without aliasing
func (p *Profile) Clone() *Profile {
	c := *p
	c.Badges = append([]Badge{}, p.Badges...)
	c.MistakeBank = append([]string{}, p.MistakeBank...)
	c.CompletedScenarios = append([]string{}, p.CompletedScenarios...)
	c.RecentAttemptIDs = append([]string(nil), p.RecentAttemptIDs...)
	c.ScenarioAttempts = make(map[string]int, len(p.ScenarioAttempts))
	for k, v := range p.ScenarioAttempts {
		c.ScenarioAttempts[k] = v
	}
	c.ScenarioBestScores = make(map[string]int, len(p.ScenarioBestScores))
	for k, v := range p.ScenarioBestScores {
		c.ScenarioBestScores[k] = v
	}
	if p.HardModeProgress.UnlockedAt != nil {
		t := *p.HardModeProgress.UnlockedAt
		c.HardModeProgress.UnlockedAt = &t
	}
	return &c
}

// AttemptRecord is the append-only history entry for one graded submission
type AttemptRecord struct {
	ID           string         `json:"attemptId"`
	ProfileID    string         `json:"profileId"`
	ScenarioID   string         `json:"scenarioId"`
	Timestamp    time.Time      `json:"timestamp"`
	Score        int            `json:"score"`
	PointsEarned int            `json:"pointsEarned"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
	Answers      PlayerAnswers  `json:"answers"`
	Datasheet    Datasheet      `json:"datasheet"`
	Mode         Mode           `json:"mode"`
}

// Draft is an in-progress datasheet saved between visits
type Draft struct {
	ProfileID  string    `json:"profileId"`
	ScenarioID string    `json:"scenarioId"`
	Datasheet  Datasheet `json:"datasheet"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// AttemptFilters narrows attempt history queries
type AttemptFilters struct {
	ProfileID  string
	ScenarioID string
	Limit      int
}

// SubmitResponse is returned after an attempt is graded and recorded
type SubmitResponse struct {
	AttemptID string      `json:"attemptId"`
	Result    GradeResult `json:"result"`
	Profile   *Profile    `json:"profile"`
	NewBadges []Badge     `json:"newBadges"`
	RankUp    bool        `json:"rankUp"`
}

// LeaderboardEntry is one row of the XP leaderboard
type LeaderboardEntry struct {
	ProfileID string `json:"profileId"`
	XP        int    `json:"xp"`
	Position  int    `json:"position"`
}

// EventType names a progression event
type EventType string

const (
	EventAttemptRecorded EventType = "attempt_recorded"
	EventBadgeEarned     EventType = "badge_earned"
	EventRankUp          EventType = "rank_up"
	EventHardModeUnlock  EventType = "hard_mode_unlocked"
	EventProfileReset    EventType = "profile_reset"
)

// Event is broadcast to live feeds when a profile changes
type Event struct {
	Type      EventType `json:"type"`
	ProfileID string    `json:"profileId"`
	AttemptID string    `json:"attemptId,omitempty"`
	Score     int       `json:"score,omitempty"`
	XP        int       `json:"xp,omitempty"`
	Rank      string    `json:"rank,omitempty"`
	Badge     *Badge    `json:"badge,omitempty"`
	At        time.Time `json:"at"`
}
