package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/pulih-app/coach/domain/entities"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, TokenResponse{Token: "token-1", UserID: req["user_id"], ExpiresAt: time.Now().Add(time.Hour)})
	})
	mux.HandleFunc("/api/v1/exercises/pelvic-tilt", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, entities.Exercise{
			ID: "pelvic-tilt", Name: "Pelvic Tilt", Sets: 2, Reps: 10,
			Phases: []entities.Phase{entities.PhaseInhale, entities.PhaseExhale},
		})
	}))
	mux.HandleFunc("/api/v1/exercises/broken", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, entities.Exercise{ID: "broken"})
	}))
	mux.HandleFunc("/api/v1/progress/summary", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, entities.ProgressSummary{TotalSessions: 3, TotalReps: 42, AverageScore: 81.5})
	}))
	mux.HandleFunc("/api/v1/achievements", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"achievements": []entities.Achievement{{ID: "first_session", Name: "First Session"}},
		})
	}))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient(t *testing.T) {
	server := newTestServer(t)
	client, err := NewClient(server.URL+"/", "", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()

	if _, err := client.GetProgressSummary(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized without token, got %v", err)
	}

	token, err := client.RequestToken(ctx, "user-1")
	if err != nil {
		t.Fatalf("RequestToken() error = %v", err)
	}
	if token.Token != "token-1" || token.UserID != "user-1" {
		t.Errorf("Unexpected token response %+v", token)
	}

	exercise, err := client.GetExercise(ctx, "pelvic-tilt")
	if err != nil {
		t.Fatalf("GetExercise() error = %v", err)
	}
	if exercise.Name != "Pelvic Tilt" || exercise.Reps != 10 {
		t.Errorf("Unexpected exercise %+v", exercise)
	}

	summary, err := client.GetProgressSummary(ctx)
	if err != nil {
		t.Fatalf("GetProgressSummary() error = %v", err)
	}
	if summary.TotalReps != 42 {
		t.Errorf("Expected 42 reps, got %d", summary.TotalReps)
	}

	achievements, err := client.ListAchievements(ctx)
	if err != nil {
		t.Fatalf("ListAchievements() error = %v", err)
	}
	if len(achievements) != 1 || achievements[0].ID != "first_session" {
		t.Errorf("Unexpected achievements %+v", achievements)
	}
}

func TestClient_Errors(t *testing.T) {
	server := newTestServer(t)
	client, _ := NewClient(server.URL, "token-1", zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := client.GetExercise(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := client.GetExercise(ctx, "broken"); err == nil {
		t.Error("Expected validation error for incomplete exercise")
	}
	if _, err := client.GetExercise(ctx, ""); err == nil {
		t.Error("Expected error for empty id")
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "not a url", "http://"} {
		if _, err := NewClient(raw, "", zaptest.NewLogger(t)); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}
