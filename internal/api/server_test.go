package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/psv-academy/internal/academy"
	"github.com/terra-clan/psv-academy/internal/config"
	"github.com/terra-clan/psv-academy/internal/content"
	"github.com/terra-clan/psv-academy/internal/events"
	"github.com/terra-clan/psv-academy/internal/models"
	"github.com/terra-clan/psv-academy/internal/storage"
)

const (
	testJWTSecret = "test-secret"
	testIssuer    = "psv-academy-test"
)

type testEnv struct {
	server   *Server
	adminKey string
	readKey  string
	learners *LearnerAuth
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	loader := content.NewLoader()
	sc := &models.Scenario{
		ID:                    "liquid-thermal-01",
		Title:                 "Blocked-in cooler",
		ServiceType:           models.ServiceLiquid,
		DatasheetRequirements: []string{"setPressure", "volumetricFlow", "specificGravity"},
	}
	oc := &models.Outcome{
		ScenarioID:           "liquid-thermal-01",
		CorrectRelievingCase: models.CaseThermalExpansion,
		CorrectValveStyle:    models.StyleConventional,
		CorrectOrificeLetter: "D",
	}
	if err := loader.Add(sc, oc); err != nil {
		t.Fatalf("failed to add scenario: %v", err)
	}

	repo := storage.NewMemoryRepository()
	hub := events.NewHub()
	t.Cleanup(hub.Close)

	admin, adminKey, err := NewApiClient("admin", []string{"*"})
	if err != nil {
		t.Fatalf("NewApiClient failed: %v", err)
	}
	reader, readKey, err := NewApiClient("reader", []string{"catalog:*"})
	if err != nil {
		t.Fatalf("NewApiClient failed: %v", err)
	}
	for _, c := range []*models.ApiClient{admin, reader} {
		if err := repo.CreateClient(ctx, c); err != nil {
			t.Fatalf("CreateClient failed: %v", err)
		}
	}

	svc := academy.NewService(repo, loader, hub)
	srv := NewServer(
		config.ServerConfig{Port: 8080},
		config.AuthConfig{APIKeysEnabled: true, JWTSecret: testJWTSecret, JWTIssuer: testIssuer},
		svc, repo, hub, nil,
	)
	return &testEnv{
		server:   srv,
		adminKey: adminKey,
		readKey:  readKey,
		learners: NewLearnerAuth(testJWTSecret, testIssuer),
	}
}

func thermalRequest() models.GradeRequest {
	return models.GradeRequest{
		ScenarioID: "liquid-thermal-01",
		Datasheet: models.Datasheet{
			ServiceType:     "liquid",
			SetPressure:     models.Float(150),
			VolumetricFlow:  models.Float(5),
			SpecificGravity: models.Float(0.85),
			Notes:           "Cooler blocked in on both sides while hot",
			PreparedBy:      "A. Engineer",
		},
		Answers: models.PlayerAnswers{
			RelievingCase: models.CaseThermalExpansion,
			ValveStyle:    models.StyleConventional,
			OrificeLetter: "D",
		},
		ExplanationText: "Trapped liquid expands when heated, so a small thermal relief valve is enough.",
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, auth string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid response body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || !body.Success {
		t.Fatalf("expected healthy, got %d %+v", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/ready", "", nil)
	if code != http.StatusOK || !body.Success {
		t.Fatalf("expected ready, got %d %+v", code, body)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		key      string
		path     string
		wantCode int
	}{
		{"missing key", "", "/api/v1/tracks", http.StatusUnauthorized},
		{"malformed key", "not-a-key", "/api/v1/tracks", http.StatusUnauthorized},
		{"wrong secret", strings.SplitN(env.adminKey, ".", 2)[0] + ".wrong", "/api/v1/tracks", http.StatusUnauthorized},
		{"reader can browse", env.readKey, "/api/v1/tracks", http.StatusOK},
		{"reader cannot read profiles", env.readKey, "/api/v1/leaderboard", http.StatusForbidden},
		{"admin reads profiles", env.adminKey, "/api/v1/leaderboard", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodGet, tt.path, tt.key, nil)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%+v)", tt.wantCode, code, body.Error)
			}
			if code >= 400 && (body.Success || body.Error == nil) {
				t.Errorf("expected error envelope, got %+v", body)
			}
		})
	}
}

func TestGradeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/grade", env.adminKey, thermalRequest())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, body.Error)
	}
	var result models.GradeResult
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Breakdown.DecisionAccuracy != models.MaxDecisionAccuracy {
		t.Errorf("expected full decision accuracy, got %+v", result.Breakdown)
	}

	code, body = env.do(t, http.MethodPost, "/api/v1/grade?view=legacy", env.adminKey, thermalRequest())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var legacy struct {
		Score     int                    `json:"score"`
		Breakdown models.LegacyBreakdown `json:"breakdown"`
	}
	if err := json.Unmarshal(body.Data, &legacy); err != nil {
		t.Fatalf("failed to decode legacy result: %v", err)
	}
	if legacy.Breakdown.Decisions != 50 || legacy.Breakdown.Total != result.Score {
		t.Errorf("unexpected legacy breakdown %+v for score %d", legacy.Breakdown, result.Score)
	}

	missing := thermalRequest()
	missing.ScenarioID = "unknown"
	code, body = env.do(t, http.MethodPost, "/api/v1/grade", env.adminKey, missing)
	if code != http.StatusNotFound || body.Error == nil || body.Error.Code != "scenario_not_found" {
		t.Fatalf("expected scenario_not_found, got %d %+v", code, body.Error)
	}

	code, _ = env.do(t, http.MethodPost, "/api/v1/grade", env.adminKey, map[string]string{})
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 without scenarioId, got %d", code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/profiles/learner-1/attempts", env.adminKey, thermalRequest())
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%+v)", code, body.Error)
	}
	var submitted models.SubmitResponse
	if err := json.Unmarshal(body.Data, &submitted); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	if submitted.Profile == nil || submitted.Profile.XP != submitted.Result.PointsEarned {
		t.Fatalf("unexpected submit response %+v", submitted)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/profiles/learner-1", env.adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("expected profile, got %d", code)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/profiles/learner-1/attempts", env.adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("expected attempts, got %d", code)
	}
	var list struct {
		Attempts []models.AttemptRecord `json:"attempts"`
		Total    int                    `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &list); err != nil {
		t.Fatalf("failed to decode attempts: %v", err)
	}
	if list.Total != 1 || list.Attempts[0].ID != submitted.AttemptID {
		t.Fatalf("unexpected attempts %+v", list)
	}

	code, _ = env.do(t, http.MethodGet, "/api/v1/attempts/"+submitted.AttemptID, env.adminKey, nil)
	if code != http.StatusOK {
		t.Errorf("expected attempt lookup, got %d", code)
	}

	hard := thermalRequest()
	hard.Mode = models.ModeHard
	code, body = env.do(t, http.MethodPost, "/api/v1/profiles/learner-1/attempts", env.adminKey, hard)
	if code != http.StatusUnprocessableEntity || body.Error.Code != "not_hard_eligible" {
		t.Errorf("expected not_hard_eligible, got %d %+v", code, body.Error)
	}

	code, _ = env.do(t, http.MethodDelete, "/api/v1/profiles/learner-1", env.adminKey, nil)
	if code != http.StatusOK {
		t.Fatalf("expected reset, got %d", code)
	}
	code, body = env.do(t, http.MethodGet, "/api/v1/profiles/learner-1", env.adminKey, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 after reset, got %d", code)
	}
}

func TestLearnerRoutes(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.learners.IssueToken("learner-7", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	code, body := env.do(t, http.MethodPost, "/api/v1/me/attempts", token, thermalRequest())
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%+v)", code, body.Error)
	}

	code, body = env.do(t, http.MethodGet, "/api/v1/me", token, nil)
	if code != http.StatusOK {
		t.Fatalf("expected profile, got %d", code)
	}
	var p models.Profile
	if err := json.Unmarshal(body.Data, &p); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if p.ID != "learner-7" {
		t.Errorf("expected token subject as profile id, got %q", p.ID)
	}

	draft := models.Datasheet{Tag: "PSV-9", SpecificGravity: models.Float(0.9)}
	if code, _ = env.do(t, http.MethodPut, "/api/v1/me/drafts/liquid-thermal-01", token, draft); code != http.StatusOK {
		t.Fatalf("expected draft saved, got %d", code)
	}
	if code, _ = env.do(t, http.MethodGet, "/api/v1/me/drafts/liquid-thermal-01", token, nil); code != http.StatusOK {
		t.Fatalf("expected draft, got %d", code)
	}
	if code, _ = env.do(t, http.MethodDelete, "/api/v1/me/drafts/liquid-thermal-01", token, nil); code != http.StatusOK {
		t.Fatalf("expected draft deleted, got %d", code)
	}
	if code, _ = env.do(t, http.MethodGet, "/api/v1/me/drafts/liquid-thermal-01", token, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}

	other := NewLearnerAuth("other-secret", testIssuer)
	forged, _ := other.IssueToken("learner-7", time.Hour)
	if code, _ = env.do(t, http.MethodGet, "/api/v1/me", forged, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for foreign signature, got %d", code)
	}
	expired, _ := env.learners.IssueToken("learner-7", -time.Minute)
	if code, _ = env.do(t, http.MethodGet, "/api/v1/me", expired, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %d", code)
	}
	// API keys are not learner tokens
	if code, _ = env.do(t, http.MethodGet, "/api/v1/me", env.adminKey, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for api key on learner route, got %d", code)
	}
}

func TestCatalogHidesAnswerKey(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scenarios/liquid-thermal-01", nil)
	req.Header.Set("X-API-Key", env.readKey)
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "correctValveStyle") || strings.Contains(rec.Body.String(), "thermal_expansion") {
		t.Fatalf("scenario response leaks the answer key: %s", rec.Body.String())
	}

	code, _ := env.do(t, http.MethodGet, "/api/v1/scenarios/missing", env.readKey, nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
	code, _ = env.do(t, http.MethodGet, "/api/v1/scenarios?track=missing", env.readKey, nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown track, got %d", code)
	}
}

func TestFeedStreamsEvents(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Router())
	defer ts.Close()

	header := http.Header{}
	header.Set("X-API-Key", env.adminKey)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/feed?profileId=learner-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("failed to dial feed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg FeedMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connected" {
		t.Fatalf("expected connected frame, got %+v (err=%v)", msg, err)
	}

	code, _ := env.do(t, http.MethodPost, "/api/v1/profiles/learner-1/attempts", env.adminKey, thermalRequest())
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if msg.Type != "event" || msg.Event == nil || msg.Event.Type != models.EventAttemptRecorded || msg.Event.ProfileID != "learner-1" {
		t.Fatalf("unexpected feed message %+v", msg)
	}
}
