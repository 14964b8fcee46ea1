package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
)

func TestAuth_ProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))

	viewer := mintToken(t, auth.RoleViewer)
	operator := mintToken(t, auth.RoleOperator)
	upstairsOnly := mintToken(t, auth.RoleOperator, string(masterUp))
	foreign, err := auth.GenerateAccessToken(auth.TokenRequest{
		Subject: "elsewhere",
		Role:    auth.RoleAdmin,
		TTL:     time.Minute,
	}, "another-secret-key-that-is-also-long-enough")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/rooms", "", http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/api/v1/rooms", foreign, http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/rooms", "not.a.jwt", http.StatusUnauthorized},
		{"viewer reads rooms", http.MethodGet, "/api/v1/rooms", viewer, http.StatusOK},
		{"viewer reads masters", http.MethodGet, "/api/v1/masters", viewer, http.StatusOK},
		{"viewer cannot start", http.MethodPost, "/api/v1/rooms/" + kitchenUID + "/start", viewer, http.StatusForbidden},
		{"viewer reads dispatches", http.MethodGet, "/api/v1/dispatches", viewer, http.StatusOK},
		{"operator starts", http.MethodPost, "/api/v1/rooms/" + kitchenUID + "/start", operator, http.StatusAccepted},
		{"operator cannot sync", http.MethodPost, "/api/v1/masters/" + string(masterDown) + "/sync", operator, http.StatusForbidden},
		{"scoped operator outside scope", http.MethodPost, "/api/v1/rooms/" + hallUID + "/start", upstairsOnly, http.StatusForbidden},
		{"scoped operator stop outside scope", http.MethodPost, "/api/v1/masters/" + string(masterDown) + "/stop", upstairsOnly, http.StatusForbidden},
		{"scoped operator inside scope", http.MethodPost, "/api/v1/rooms/" + bedroomUID + "/start", upstairsOnly, http.StatusAccepted},
		{"scoped operator reads all rooms", http.MethodGet, "/api/v1/rooms", upstairsOnly, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, "", tt.token)
			assertStatus(t, w, tt.want)
		})
	}
}

func TestAuth_MalformedHeader(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("Authorization", "Basic "+mintToken(t, auth.RoleAdmin))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assertStatus(t, w, http.StatusUnauthorized)
	assertErrorCode(t, w, ErrCodeUnauthorized)
}

func TestAuth_DisabledAllowsAnonymousAdmin(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/masters/"+string(masterDown)+"/sync", "", "")
	assertStatus(t, w, http.StatusOK)
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))
	admin := mintToken(t, auth.RoleAdmin)

	w := env.do(t, http.MethodPost, "/api/v1/auth/token",
		`{"subject":"panel-kitchen","role":"operator","masters":["vacuum.roborock_s7"],"ttl_minutes":5}`, admin)
	assertStatus(t, w, http.StatusCreated)

	var resp tokenResponse
	decodeBody(t, w, &resp)
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != 300 {
		t.Errorf("expires_in = %d, want 300", resp.ExpiresIn)
	}

	claims, err := auth.ParseToken(resp.AccessToken, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "panel-kitchen" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %s/%s", claims.Subject, claims.Role)
	}
	if !claims.Scope().CanControl(string(masterDown)) || claims.Scope().CanControl(string(masterUp)) {
		t.Errorf("scope = %v, want only %s", claims.Masters, masterDown)
	}

	// The minted token works against the API.
	w = env.do(t, http.MethodPost, "/api/v1/rooms/"+kitchenUID+"/start", "", resp.AccessToken)
	assertStatus(t, w, http.StatusAccepted)
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))

	w := env.do(t, http.MethodPost, "/api/v1/auth/token",
		`{"subject":"hallway-panel","role":"viewer"}`, mintToken(t, auth.RoleAdmin))
	assertStatus(t, w, http.StatusCreated)

	var resp tokenResponse
	decodeBody(t, w, &resp)
	if resp.ExpiresIn != 15*60 {
		t.Errorf("expires_in = %d, want %d", resp.ExpiresIn, 15*60)
	}
}

func TestIssueToken_Rejected(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))
	admin := mintToken(t, auth.RoleAdmin)
	scopedAdmin := mintToken(t, auth.RoleAdmin, string(masterUp))

	tests := []struct {
		name  string
		body  string
		token string
		want  int
	}{
		{"operator lacks permission", `{"subject":"x","role":"viewer"}`, mintToken(t, auth.RoleOperator), http.StatusForbidden},
		{"invalid JSON", `{`, admin, http.StatusBadRequest},
		{"invalid role", `{"subject":"x","role":"root"}`, admin, http.StatusBadRequest},
		{"missing subject", `{"role":"viewer"}`, admin, http.StatusBadRequest},
		{"scoped issuer mints unrestricted", `{"subject":"x","role":"viewer"}`, scopedAdmin, http.StatusForbidden},
		{"scoped issuer mints outside scope", `{"subject":"x","role":"viewer","masters":["vacuum.roborock_s7"]}`, scopedAdmin, http.StatusForbidden},
		{"scoped issuer mints inside scope", `{"subject":"x","role":"viewer","masters":["vacuum.upstairs"]}`, scopedAdmin, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/token", tt.body, tt.token)
			assertStatus(t, w, tt.want)
		})
	}
}

func TestIssueToken_AuthDisabled(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/auth/token", `{"subject":"x","role":"viewer"}`, "")
	assertStatus(t, w, http.StatusServiceUnavailable)
}

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t, withSecret(testSecret))

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", mintToken(t, auth.RoleViewer))
	assertStatus(t, w, http.StatusOK)

	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Ticket) != ticketBytes*2 {
		t.Errorf("ticket length = %d, want %d", len(resp.Ticket), ticketBytes*2)
	}

	claims, ok := env.srv.tickets.redeem(resp.Ticket)
	if !ok {
		t.Fatal("first redeem should succeed")
	}
	if claims.Role != auth.RoleViewer {
		t.Errorf("ticket role = %q, want viewer", claims.Role)
	}
	if _, ok := env.srv.tickets.redeem(resp.Ticket); ok {
		t.Error("second redeem should fail")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	store := newTicketStore()
	store.tickets["expired"] = ticketEntry{
		claims:    &auth.CustomClaims{Role: auth.RoleViewer},
		expiresAt: time.Now().Add(-time.Second),
	}
	store.tickets["live"] = ticketEntry{
		claims:    &auth.CustomClaims{Role: auth.RoleViewer},
		expiresAt: time.Now().Add(time.Minute),
	}

	store.cleanExpired()
	if _, ok := store.tickets["expired"]; ok {
		t.Error("cleanExpired kept an expired ticket")
	}
	if _, ok := store.tickets["live"]; !ok {
		t.Error("cleanExpired removed a live ticket")
	}

	store.tickets["expired"] = ticketEntry{expiresAt: time.Now().Add(-time.Second)}
	if _, ok := store.redeem("expired"); ok {
		t.Error("expired ticket redeemed")
	}
	if _, ok := store.redeem("unknown"); ok {
		t.Error("unknown ticket redeemed")
	}
}
