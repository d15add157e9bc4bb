package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/psv-academy/internal/models"
)

// Client is a Go SDK for the psv-academy API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new psv-academy client. apiKey may also be a learner token
// when only /api/v1/me routes are used.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-success response from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// AttemptList is one page of attempt history
type AttemptList struct {
	Attempts []*models.AttemptRecord `json:"attempts"`
	Total    int                     `json:"total"`
}

// TrackDetail is a track together with its scenarios
type TrackDetail struct {
	Track     *models.Track      `json:"track"`
	Scenarios []*models.Scenario `json:"scenarios"`
}

// Grade scores an attempt without recording it
func (c *Client) Grade(ctx context.Context, req models.GradeRequest) (*models.GradeResult, error) {
	var result models.GradeResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/grade", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GradeLegacy scores an attempt and returns the legacy 40/50/10 breakdown
func (c *Client) GradeLegacy(ctx context.Context, req models.GradeRequest) (*models.LegacyGradeResult, error) {
	var result models.LegacyGradeResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/grade?view=legacy", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Submit grades and records an attempt. A non-empty idempotencyKey makes retries safe.
func (c *Client) Submit(ctx context.Context, profileID, idempotencyKey string, req models.GradeRequest) (*models.SubmitResponse, error) {
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}

	var result models.SubmitResponse
	if err := c.call(ctx, http.MethodPost, profilePath(profileID, "/attempts"), headers, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProfile retrieves a learner profile
func (c *Client) GetProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, http.MethodGet, profilePath(profileID, ""), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResetProfile deletes a profile with its history and drafts
func (c *Client) ResetProfile(ctx context.Context, profileID string) error {
	return c.call(ctx, http.MethodDelete, profilePath(profileID, ""), nil, nil, nil)
}

// ListAttempts retrieves attempt history, newest first. scenarioID and limit are optional.
func (c *Client) ListAttempts(ctx context.Context, profileID, scenarioID string, limit int) (*AttemptList, error) {
	q := url.Values{}
	if scenarioID != "" {
		q.Set("scenarioId", scenarioID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := profilePath(profileID, "/attempts")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list AttemptList
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetAttempt retrieves one recorded attempt
func (c *Client) GetAttempt(ctx context.Context, attemptID string) (*models.AttemptRecord, error) {
	var a models.AttemptRecord
	if err := c.call(ctx, http.MethodGet, "/api/v1/attempts/"+url.PathEscape(attemptID), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveDraft stores an in-progress datasheet
func (c *Client) SaveDraft(ctx context.Context, profileID, scenarioID string, ds models.Datasheet) (*models.Draft, error) {
	var d models.Draft
	if err := c.call(ctx, http.MethodPut, profilePath(profileID, "/drafts/"+url.PathEscape(scenarioID)), nil, ds, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDraft retrieves a saved draft
func (c *Client) GetDraft(ctx context.Context, profileID, scenarioID string) (*models.Draft, error) {
	var d models.Draft
	if err := c.call(ctx, http.MethodGet, profilePath(profileID, "/drafts/"+url.PathEscape(scenarioID)), nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDraft discards a saved draft
func (c *Client) DeleteDraft(ctx context.Context, profileID, scenarioID string) error {
	return c.call(ctx, http.MethodDelete, profilePath(profileID, "/drafts/"+url.PathEscape(scenarioID)), nil, nil, nil)
}

// Leaderboard retrieves the top profiles by XP
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	path := "/api/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var result struct {
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// ListTracks retrieves all tracks
func (c *Client) ListTracks(ctx context.Context) ([]*models.Track, error) {
	var result struct {
		Tracks []*models.Track `json:"tracks"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tracks", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Tracks, nil
}

// GetTrack retrieves a track with its scenarios
func (c *Client) GetTrack(ctx context.Context, trackID string) (*TrackDetail, error) {
	var detail TrackDetail
	if err := c.call(ctx, http.MethodGet, "/api/v1/tracks/"+url.PathEscape(trackID), nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListScenarios retrieves scenarios, optionally limited to one track
func (c *Client) ListScenarios(ctx context.Context, trackID string) ([]*models.Scenario, error) {
	path := "/api/v1/scenarios"
	if trackID != "" {
		path += "?track=" + url.QueryEscape(trackID)
	}

	var result struct {
		Scenarios []*models.Scenario `json:"scenarios"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Scenarios, nil
}

// GetScenario retrieves one scenario brief
func (c *Client) GetScenario(ctx context.Context, scenarioID string) (*models.Scenario, error) {
	var sc models.Scenario
	if err := c.call(ctx, http.MethodGet, "/api/v1/scenarios/"+url.PathEscape(scenarioID), nil, nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func profilePath(profileID, suffix string) string {
	return "/api/v1/profiles/" + url.PathEscape(profileID) + suffix
}

// call performs a request and decodes the response envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, headers http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown_error"}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}
