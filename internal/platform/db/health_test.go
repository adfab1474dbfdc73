package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pinger     fakePinger
		wantStatus int
		wantBody   string
	}{
		{"healthy", fakePinger{}, http.StatusOK, "healthy"},
		{"unhealthy", fakePinger{err: errors.New("closed")}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := HealthHandler(tt.pinger, "memory")(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("expected status %q, got %v", tt.wantBody, body["status"])
			}
			if body["store"] != "memory" {
				t.Errorf("expected store memory, got %v", body["store"])
			}
			if _, ok := body["pool"]; ok {
				t.Error("pool stats should only appear for pgx pools")
			}
		})
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	data, err := json.Marshal(&PoolStats{TotalConns: 3, MaxConns: 20, AcquireDuration: "1s"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing JSON key %q", key)
		}
	}
}
