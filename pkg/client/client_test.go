package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terra-clan/psv-academy/internal/models"
)

func envelope(w http.ResponseWriter, status int, data interface{}, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"success": status < 300}
	if data != nil {
		body["data"] = data
	}
	if code != "" {
		body["error"] = map[string]string{"code": code, "message": message}
	}
	json.NewEncoder(w).Encode(body)
}

func TestSubmitSendsKeyAndDecodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/profiles/learner-1/attempts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer psv_abc.secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "retry-1" {
			t.Errorf("unexpected idempotency key %q", got)
		}

		var req models.GradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		envelope(w, http.StatusCreated, models.SubmitResponse{
			AttemptID: "a1b2c3d4e5f6",
			Result:    models.GradeResult{ScenarioID: req.ScenarioID, Score: 88},
			Profile:   &models.Profile{ID: "learner-1", XP: 110},
		}, "", "")
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "psv_abc.secret")
	resp, err := c.Submit(context.Background(), "learner-1", "retry-1", models.GradeRequest{ScenarioID: "gas-flare-01"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.AttemptID != "a1b2c3d4e5f6" || resp.Result.Score != 88 || resp.Profile.XP != 110 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestErrorsAreTyped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusNotFound, nil, "scenario_not_found", "grading unavailable: scenario not found")
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "").Grade(context.Background(), models.GradeRequest{ScenarioID: "missing"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "scenario_not_found" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestListAttemptsQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("scenarioId") != "gas-flare-01" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		envelope(w, http.StatusOK, map[string]interface{}{
			"attempts": []models.AttemptRecord{{ID: "x", Score: 70}},
			"total":    1,
		}, "", "")
	}))
	defer ts.Close()

	list, err := NewClient(ts.URL, "").ListAttempts(context.Background(), "learner-1", "gas-flare-01", 5)
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if list.Total != 1 || list.Attempts[0].ID != "x" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "").Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
}
