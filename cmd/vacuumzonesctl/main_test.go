package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
}

// fakeAPI serves canned JSON per "METHOD path" and records every request.
type fakeAPI struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]string
	status    int
}

func newFakeAPI(t *testing.T, responses map[string]string) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{responses: responses, status: http.StatusOK}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.requests = append(api.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			auth:   r.Header.Get("Authorization"),
		})
		status := api.status
		api.mu.Unlock()

		body, ok := api.responses[r.Method+" "+r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":404,"code":"not_found","message":"room not found"}`)) //nolint:errcheck // test server
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck // test server
	}))
	t.Cleanup(ts.Close)
	return api, ts
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return recordedRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestBuildCLI(t *testing.T) {
	cmd := buildCLI()

	if cmd.Use != "vacuumzonesctl" {
		t.Errorf("Use = %q, want vacuumzonesctl", cmd.Use)
	}

	want := []string{"rooms", "masters", "start", "stop", "home", "flush", "sync", "dispatches", "token"}
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing %q subcommand", name)
		}
	}

	if f := cmd.PersistentFlags().Lookup("server"); f == nil || f.Shorthand != "s" {
		t.Error("expected --server/-s persistent flag")
	}
}

func TestRooms(t *testing.T) {
	api, ts := newFakeAPI(t, map[string]string{
		"GET /api/v1/rooms":                         `{"rooms":[{"unique_id":"vacuumzones_roborock_s7_16","name":"Kitchen","master_id":"vacuum.roborock_s7","room_id":16,"state":"idle"}],"count":1}`,
		"GET /api/v1/masters/vacuum.upstairs/rooms": `{"rooms":[],"count":0}`,
	})

	out, err := runCLI(t, "rooms", "--server", ts.URL, "--token", "abc")
	if err != nil {
		t.Fatalf("rooms error: %v", err)
	}
	if !strings.Contains(out, "vacuumzones_roborock_s7_16") || !strings.Contains(out, "Kitchen") {
		t.Errorf("output missing room row:\n%s", out)
	}
	if got := api.last().auth; got != "Bearer abc" {
		t.Errorf("Authorization = %q, want Bearer abc", got)
	}

	if _, err := runCLI(t, "rooms", "--server", ts.URL, "--master", "vacuum.upstairs"); err != nil {
		t.Fatalf("rooms --master error: %v", err)
	}
	if got := api.last().path; got != "/api/v1/masters/vacuum.upstairs/rooms" {
		t.Errorf("path = %q", got)
	}
}

func TestStart(t *testing.T) {
	api, ts := newFakeAPI(t, map[string]string{
		"POST /api/v1/rooms/vacuumzones_roborock_s7_16/start": `{"status":"queued","pending":{"master_id":"vacuum.roborock_s7","room_ids":[16],"scheduler":"armed"}}`,
		"POST /api/v1/rooms/vacuumzones_roborock_s7_17/start": `{"status":"queued","pending":{"master_id":"vacuum.roborock_s7","room_ids":[16,17],"scheduler":"armed"}}`,
	})

	out, err := runCLI(t, "start", "vacuumzones_roborock_s7_16", "vacuumzones_roborock_s7_17", "--server", ts.URL)
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	if n := api.count(); n != 2 {
		t.Fatalf("requests = %d, want 2", n)
	}
	if !strings.Contains(out, "[16 17]") {
		t.Errorf("output missing pending batch:\n%s", out)
	}

	_, err = runCLI(t, "start", "vacuumzones_missing_9", "--server", ts.URL)
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestStopAndHome(t *testing.T) {
	api, ts := newFakeAPI(t, map[string]string{
		"POST /api/v1/rooms/vacuumzones_roborock_s7_16/stop":        `{"status":"ok","master_id":"vacuum.roborock_s7"}`,
		"POST /api/v1/masters/vacuum.upstairs/stop":                 `{"status":"ok","master_id":"vacuum.upstairs"}`,
		"POST /api/v1/masters/vacuum.upstairs/return_home":          `{"status":"ok","master_id":"vacuum.upstairs"}`,
		"POST /api/v1/rooms/vacuumzones_roborock_s7_16/return_home": `{"status":"ok","master_id":"vacuum.roborock_s7"}`,
	})

	tests := []struct {
		name     string
		args     []string
		wantPath string
		wantOut  string
	}{
		{"stop by room", []string{"stop", "vacuumzones_roborock_s7_16"}, "/api/v1/rooms/vacuumzones_roborock_s7_16/stop", "stop sent to vacuum.roborock_s7"},
		{"stop by master", []string{"stop", "-m", "vacuum.upstairs"}, "/api/v1/masters/vacuum.upstairs/stop", "stop sent to vacuum.upstairs"},
		{"home by master", []string{"home", "--master", "vacuum.upstairs"}, "/api/v1/masters/vacuum.upstairs/return_home", "return_home sent to vacuum.upstairs"},
		{"home by room", []string{"home", "vacuumzones_roborock_s7_16"}, "/api/v1/rooms/vacuumzones_roborock_s7_16/return_home", "return_home sent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, append(tt.args, "--server", ts.URL)...)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			last := api.last()
			if last.method != http.MethodPost || last.path != tt.wantPath {
				t.Errorf("request = %s %s, want POST %s", last.method, last.path, tt.wantPath)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

func TestFlushAndSync(t *testing.T) {
	_, ts := newFakeAPI(t, map[string]string{
		"POST /api/v1/masters/vacuum.roborock_s7/flush": `{"master_id":"vacuum.roborock_s7","dispatched":[16,17]}`,
		"POST /api/v1/masters/vacuum.upstairs/flush":    `{"master_id":"vacuum.upstairs","dispatched":null}`,
		"POST /api/v1/masters/vacuum.roborock_s7/sync":  `{"master_id":"vacuum.roborock_s7","rooms":4}`,
	})

	tests := []struct {
		args    []string
		wantOut string
	}{
		{[]string{"flush", "vacuum.roborock_s7"}, "dispatched [16 17]"},
		{[]string{"flush", "vacuum.upstairs"}, "nothing pending"},
		{[]string{"sync", "vacuum.roborock_s7"}, "4 rooms synced"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := runCLI(t, append(tt.args, "--server", ts.URL)...)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

func TestDispatches(t *testing.T) {
	api, ts := newFakeAPI(t, map[string]string{
		"GET /api/v1/dispatches": `{"dispatches":[{"id":"d1","master_id":"vacuum.roborock_s7","kind":"segment_clean","command":"app_segment_clean","room_ids":[16],"status":"acknowledged","requested_at":"2026-01-02T10:00:00Z","completed_at":"2026-01-02T10:00:00.2Z"}],"count":1}`,
	})

	out, err := runCLI(t, "dispatches", "-m", "vacuum.roborock_s7", "-k", "segment_clean", "-n", "5", "--server", ts.URL)
	if err != nil {
		t.Fatalf("dispatches error: %v", err)
	}
	if q := api.last().query; q != "kind=segment_clean&limit=5&master_id=vacuum.roborock_s7" {
		t.Errorf("query = %q", q)
	}
	for _, want := range []string{"segment_clean", "acknowledged", "200ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	err := newClient(ts.URL, "", defaultTimeout).do(t.Context(), http.MethodGet, "/rooms", nil, nil, nil)
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if apiErr.Code != "http_error" || apiErr.Message != "bad gateway" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestToken(t *testing.T) {
	secret := "a-test-secret-that-is-at-least-32-chars"
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  id: test-site
security:
  jwt:
    secret: "` + secret + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, "token", "-c", configPath, "--subject", "hall-panel", "-r", "operator", "--scope", "vacuum.upstairs")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), secret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "hall-panel" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %s/%s", claims.Subject, claims.Role)
	}
	if !claims.Scope().CanControl("vacuum.upstairs") || claims.Scope().CanControl("vacuum.roborock_s7") {
		t.Errorf("scope = %v", claims.Masters)
	}
}

func TestToken_Rejected(t *testing.T) {
	dir := t.TempDir()
	noSecret := filepath.Join(dir, "nosecret.yaml")
	if err := os.WriteFile(noSecret, []byte("site:\n  id: test-site\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	withSecret := filepath.Join(dir, "secret.yaml")
	if err := os.WriteFile(withSecret, []byte("site:\n  id: test-site\nsecurity:\n  jwt:\n    secret: a-test-secret-that-is-at-least-32-chars\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"token", "-c", filepath.Join(dir, "missing.yaml")}},
		{"no secret", []string{"token", "-c", noSecret}},
		{"invalid role", []string{"token", "-c", withSecret, "-r", "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFormatRooms(t *testing.T) {
	if got := formatRooms(nil); got != "-" {
		t.Errorf("formatRooms(nil) = %q, want -", got)
	}
}
