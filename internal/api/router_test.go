package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/mdview/internal/db"
	"github.com/user/mdview/internal/profile"
	"github.com/user/mdview/internal/term"
)

type nopNotifier struct{}

func (nopNotifier) Output(string, []byte) {}
func (nopNotifier) Closed(string)         {}

func newTestRouter(t *testing.T, token string) (http.Handler, *term.Registry) {
	t.Helper()

	store := profile.NewStore(filepath.Join(t.TempDir(), "profiles.json"))
	registry := term.NewRegistry(nopNotifier{})
	t.Cleanup(registry.Shutdown)

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRouter(store, registry, db.NewHistoryRepo(database.SQL()), token), registry
}

func TestGetProfilesReturnsDefault(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/profiles", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var profiles []profile.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "default-shell" {
		t.Errorf("profiles = %+v", profiles)
	}
}

func TestSaveProfilesRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t, "")

	body := `[{"id":"htop","name":"System monitor","command":"htop"}]`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/terminal/profiles", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/profiles", nil))

	var profiles []profile.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profiles); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "htop" {
		t.Errorf("profiles after save = %+v", profiles)
	}
}

func TestSaveProfilesRejectsMalformedPayload(t *testing.T) {
	router, _ := newTestRouter(t, "")

	for _, body := range []string{
		`{"not":"a list"}`,
		`[{"id":"x","name":"X","bogus":true}]`,
		`[{"name":"missing id"}]`,
		`[{"id":"bad","name":"Bad","command":"echo \"unterminated"}]`,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/terminal/profiles", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestListSessionsReflectsRegistry(t *testing.T) {
	router, registry := newTestRouter(t, "")

	if _, err := registry.Spawn("api-1", "", 80, 24, "sleep 10"); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Active []term.SessionInfo `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Active) != 1 || resp.Active[0].ID != "api-1" {
		t.Errorf("active = %+v", resp.Active)
	}
}

func TestListHistoryEmpty(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty list", body)
	}
}

func TestListHistoryRejectsBadLimit(t *testing.T) {
	router, _ := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/history?limit=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/profiles", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/terminal/profiles", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer token: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terminal/profiles?token=secret", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/terminal/profiles", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/terminal/profiles", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Allow-Origin = %q", origin)
	}
}
