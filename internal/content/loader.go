package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/psv-academy/internal/models"
)

// Loader manages loading and caching of tracks, scenarios and their answer keys
type Loader struct {
	mu        sync.RWMutex
	tracks    map[string]*models.Track
	scenarios map[string]*models.Scenario
	outcomes  map[string]*models.Outcome
}

// NewLoader creates a new content loader
func NewLoader() *Loader {
	return &Loader{
		tracks:    make(map[string]*models.Track),
		scenarios: make(map[string]*models.Scenario),
		outcomes:  make(map[string]*models.Outcome),
	}
}

// LoadFromDir scans dir for track directories (those holding a track.yaml) and loads their scenarios.
// Broken files are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading content from directory", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		trackDir := filepath.Join(dir, entry.Name())
		trackYaml := filepath.Join(trackDir, "track.yaml")
		if _, err := os.Stat(trackYaml); os.IsNotExist(err) {
			continue // not a track directory
		}

		track, err := l.loadTrack(entry.Name(), trackDir)
		if err != nil {
			slog.Warn("failed to load track", "dir", entry.Name(), "error", err)
			continue
		}

		l.mu.Lock()
		l.tracks[track.ID] = track
		l.mu.Unlock()

		slog.Info("track loaded", "id", track.ID, "name", track.Name, "scenarios", track.ScenariosCount)
	}

	return nil
}

// loadTrack loads track.yaml and every scenario file under scenarios/
func (l *Loader) loadTrack(id, dir string) (*models.Track, error) {
	data, err := os.ReadFile(filepath.Join(dir, "track.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read track.yaml: %w", err)
	}

	var tf trackFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse track.yaml: %w", err)
	}

	name := tf.Name
	if name == "" {
		name = id
	}
	track := &models.Track{
		ID:          id,
		Name:        name,
		Description: tf.Description,
		Order:       tf.Order,
	}

	scenariosDir := filepath.Join(dir, "scenarios")
	entries, err := os.ReadDir(scenariosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return track, nil
		}
		return nil, fmt.Errorf("failed to read scenarios dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		path := filepath.Join(scenariosDir, entry.Name())
		if err := l.LoadScenarioFile(id, path); err != nil {
			slog.Warn("failed to load scenario", "track", id, "file", entry.Name(), "error", err)
			continue
		}
		track.ScenariosCount++
	}

	return track, nil
}

// LoadScenarioFile loads one scenario and its answer key. JSON files parse as YAML.
func (l *Loader) LoadScenarioFile(trackID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var sf scenarioFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse scenario: %w", err)
	}
	var rf ruleCapsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("failed to parse critical rules: %w", err)
	}

	// Use id from the file, fall back to filename without extension
	if sf.ID == "" {
		base := filepath.Base(path)
		sf.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if sf.Outcome == nil {
		return fmt.Errorf("scenario %s has no outcome", sf.ID)
	}
	for i, r := range rf.Outcome.CriticalRules {
		if r.CapScoreAt == nil {
			return fmt.Errorf("scenario %s: critical rule %d (%s) has no cap_score_at", sf.ID, i, r.Key)
		}
	}

	scenario := sf.Scenario
	scenario.TrackID = trackID
	outcome := *sf.Outcome
	if outcome.ScenarioID == "" {
		outcome.ScenarioID = sf.ID
	}

	return l.Add(&scenario, &outcome)
}

// Add validates and registers a scenario with its answer key
func (l *Loader) Add(sc *models.Scenario, oc *models.Outcome) error {
	if err := validate(sc, oc); err != nil {
		return err
	}

	// Apply defaults
	if sc.BasePoints == 0 {
		sc.BasePoints = defaultBasePoints
	}
	if sc.Difficulty == 0 {
		sc.Difficulty = 1
	}

	l.mu.Lock()
	l.scenarios[sc.ID] = sc
	l.outcomes[sc.ID] = oc
	l.mu.Unlock()

	slog.Debug("scenario loaded", "id", sc.ID, "track", sc.TrackID, "service", sc.ServiceType)
	return nil
}

const defaultBasePoints = 100

func validate(sc *models.Scenario, oc *models.Outcome) error {
	if sc.ID == "" {
		return fmt.Errorf("scenario id is required")
	}
	if oc.ScenarioID != sc.ID {
		return fmt.Errorf("outcome scenario_id %q does not match scenario %q", oc.ScenarioID, sc.ID)
	}
	st, ok := models.ParseServiceType(string(sc.ServiceType))
	if !ok {
		return fmt.Errorf("scenario %s: unknown service_type %q", sc.ID, sc.ServiceType)
	}
	sc.ServiceType = st
	if sc.Difficulty < 0 || sc.Difficulty > 5 {
		return fmt.Errorf("scenario %s: difficulty must be 1-5", sc.ID)
	}
	if sc.BasePoints < 0 {
		return fmt.Errorf("scenario %s: base_points must not be negative", sc.ID)
	}
	if oc.CorrectRelievingCase == "" || oc.CorrectValveStyle == "" || oc.CorrectOrificeLetter == "" {
		return fmt.Errorf("scenario %s: outcome must name relieving case, valve style and orifice", sc.ID)
	}
	if models.OrificeIndex(oc.CorrectOrificeLetter) < 0 {
		return fmt.Errorf("scenario %s: unknown orifice letter %q", sc.ID, oc.CorrectOrificeLetter)
	}
	for _, r := range oc.CriticalRules {
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("scenario %s: critical rule key is required", sc.ID)
		}
		if r.CapScoreAt < 0 || r.CapScoreAt > models.MaxScore {
			return fmt.Errorf("scenario %s: critical rule %s: cap_score_at must be 0-%d", sc.ID, r.Key, models.MaxScore)
		}
		if r.PenaltyPoints < 0 {
			return fmt.Errorf("scenario %s: critical rule %s: penalty_points must not be negative", sc.ID, r.Key)
		}
		if strings.TrimSpace(r.Message) == "" {
			return fmt.Errorf("scenario %s: critical rule %s: message is required", sc.ID, r.Key)
		}
	}
	for _, f := range append(append([]string{}, sc.DatasheetRequirements...), oc.RequiredFieldsForFullCredit...) {
		if !models.IsDatasheetField(f) {
			return fmt.Errorf("scenario %s: unknown datasheet field %q", sc.ID, f)
		}
	}
	return nil
}

// --- Accessors ---

// ListTracks returns all tracks ordered by their authored order
func (l *Loader) ListTracks() []*models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// GetTrack returns a track by ID
func (l *Loader) GetTrack(id string) *models.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tracks[id]
}

// ListScenarios returns scenarios of a track, or all scenarios when trackID is empty
func (l *Loader) ListScenarios(trackID string) []*models.Scenario {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := []*models.Scenario{}
	for _, s := range l.scenarios {
		if trackID == "" || s.TrackID == trackID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Difficulty != result[j].Difficulty {
			return result[i].Difficulty < result[j].Difficulty
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// GetScenario returns a scenario by ID
func (l *Loader) GetScenario(id string) *models.Scenario {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scenarios[id]
}

// GetOutcome returns the answer key for a scenario
func (l *Loader) GetOutcome(scenarioID string) *models.Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.outcomes[scenarioID]
}

// Lookup returns the scenario and its answer key together
func (l *Loader) Lookup(scenarioID string) (*models.Scenario, *models.Outcome, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sc, ok := l.scenarios[scenarioID]
	if !ok {
		return nil, nil, false
	}
	oc, ok := l.outcomes[scenarioID]
	return sc, oc, ok
}

// --- YAML file structs ---

// trackFile represents the YAML structure of a track.yaml file
type trackFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
}

// scenarioFile is a scenario with its answer key inlined under outcome
type scenarioFile struct {
	models.Scenario `yaml:",inline"`
	Outcome         *models.Outcome `yaml:"outcome"`
}

// ruleCapsFile tells an omitted cap_score_at apart from an authored 0
type ruleCapsFile struct {
	Outcome struct {
		CriticalRules []struct {
			Key        string `yaml:"key"`
			CapScoreAt *int   `yaml:"cap_score_at"`
		} `yaml:"critical_rules"`
	} `yaml:"outcome"`
}
