package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mukkaz/mukkaz/internal/auth"
	"github.com/mukkaz/mukkaz/internal/ingest"
	"github.com/pashagolub/pgxmock/v3"
)

const testJWTSecret = "test-secret"

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("down") }

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)

	orch := ingest.NewOrchestrator(ingest.DefaultSettings(), ingest.DefaultEngine(), nil, nil, mock)
	handler := ingest.NewHandler(mock, orch, 0)

	return New(Config{
		Pinger:        okPinger{},
		IngestHandler: handler,
		JWTSecret:     testJWTSecret,
		BaseURL:       "https://mukkaz.example.com",
	}), mock
}

func TestHealthOK(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthUnhealthyDatabase(t *testing.T) {
	srv := New(Config{Pinger: failingPinger{}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestLimitsIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/limits", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUploadRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/videos", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDraftsRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drafts", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDraftsWithValidToken(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery("SELECT id, title, description, tags, is_public, updated_at").
		WithArgs("user-123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "description", "tags", "is_public", "updated_at"}))

	token, err := auth.GenerateAccessToken(testJWTSecret, "user-123")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Errorf("unexpected CSP %q", got)
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS for https base url")
	}
}
