package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/services/health"
	"cvscanner-backend/internal/shared/config"
	"cvscanner-backend/internal/shared/server/middleware"
)

func testRouter(uploadsPerMinute float64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewRouter(RouterDeps{
		Config:  config.Config{Env: "dev", UploadsPerMinute: uploadsPerMinute},
		Health:  health.NewService(nil),
		Limiter: middleware.NewRateLimiter(func() time.Time { return fixed }),
	})
	// Stand-in for the résumé routes so the limiter has something to guard.
	r.POST("/api/v1/resumes/upload", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/api/v1/resumes/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := testRouter(0)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var report health.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.OK || report.Database != health.DBMemory {
		t.Fatalf("unexpected report %+v", report)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(0)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "structuring_started_total") {
		t.Fatalf("expected structuring counters in %q", resp.Body.String())
	}
}

func TestUploadsAreRateLimited(t *testing.T) {
	r := testRouter(2)

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/resumes/upload", nil))
		if resp.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, resp.Code)
		}
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/resumes/upload", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}

	// Reads are never throttled.
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/resumes/abc", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 for read, got %d", resp.Code)
		}
	}
}

func TestAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ":8080"},
		{"9000", ":9000"},
		{":7000", ":7000"},
	}
	for _, tt := range tests {
		if got := Addr(tt.in); got != tt.want {
			t.Fatalf("Addr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
