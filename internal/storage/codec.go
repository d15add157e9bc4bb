package storage

import (
	"encoding/json"
	"fmt"

	"github.com/terra-clan/psv-academy/internal/models"
)

// JSON column helpers shared by the SQL repositories

func decodeProfile(data []byte) (*models.Profile, error) {
	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	if p.Badges == nil {
		p.Badges = []models.Badge{}
	}
	if p.MistakeBank == nil {
		p.MistakeBank = []string{}
	}
	if p.CompletedScenarios == nil {
		p.CompletedScenarios = []string{}
	}
	if p.ScenarioAttempts == nil {
		p.ScenarioAttempts = map[string]int{}
	}
	if p.ScenarioBestScores == nil {
		p.ScenarioBestScores = map[string]int{}
	}
	return &p, nil
}

func encodeAttempt(a *models.AttemptRecord) (breakdown, answers, datasheet []byte, err error) {
	if breakdown, err = json.Marshal(a.Breakdown); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	if answers, err = json.Marshal(a.Answers); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	if datasheet, err = json.Marshal(a.Datasheet); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal datasheet: %w", err)
	}
	return breakdown, answers, datasheet, nil
}

func decodeAttempt(a *models.AttemptRecord, breakdown, answers, datasheet []byte) error {
	if err := json.Unmarshal(breakdown, &a.Breakdown); err != nil {
		return fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(datasheet, &a.Datasheet); err != nil {
		return fmt.Errorf("failed to unmarshal datasheet: %w", err)
	}
	return nil
}

func encodeClient(c *models.ApiClient) (permissions, metadata []byte, err error) {
	perms := c.Permissions
	if perms == nil {
		perms = []string{}
	}
	if permissions, err = json.Marshal(perms); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal permissions: %w", err)
	}
	meta := c.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	if metadata, err = json.Marshal(meta); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return permissions, metadata, nil
}

func decodeClient(c *models.ApiClient, permissions, metadata []byte) error {
	// Parse permissions JSON array
	if permissions != nil {
		if err := json.Unmarshal(permissions, &c.Permissions); err != nil {
			return fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	// Parse metadata JSON object
	if metadata != nil {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return nil
}

func derefAttempts(in []*models.AttemptRecord) []models.AttemptRecord {
	out := make([]models.AttemptRecord, 0, len(in))
	for _, a := range in {
		out = append(out, *a)
	}
	return out
}
