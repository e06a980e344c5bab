package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, *readpref.ReadPref) error { return p.err }

func get(h *Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	Routes(h).ServeHTTP(rec, req)
	return rec
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
		wantMongo  string
	}{
		{"healthy", nil, http.StatusOK, "ok", "ok"},
		{"mongo down", errors.New("server selection timeout"), http.StatusServiceUnavailable, "degraded", "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(NewHandler(fakePinger{tt.err}, nil), "/")

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("response status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Services["mongodb"] != tt.wantMongo {
				t.Errorf("mongodb status = %q, want %q", resp.Services["mongodb"], tt.wantMongo)
			}
		})
	}
}

func TestReady(t *testing.T) {
	rec := get(NewHandler(fakePinger{}, nil), "/ready")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ready"}` {
		t.Errorf("ready: %d %q", rec.Code, rec.Body.String())
	}

	rec = get(NewHandler(fakePinger{errors.New("down")}, nil), "/ready")
	if rec.Code != http.StatusServiceUnavailable || strings.TrimSpace(rec.Body.String()) != `{"status":"not ready"}` {
		t.Errorf("not ready: %d %q", rec.Code, rec.Body.String())
	}
}

func TestLive(t *testing.T) {
	// Liveness never touches the database.
	rec := get(NewHandler(fakePinger{errors.New("down")}, nil), "/live")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
