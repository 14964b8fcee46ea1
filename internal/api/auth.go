package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	Subject    string    `json:"subject"`
	Role       auth.Role `json:"role"`
	Masters    []string  `json:"masters,omitempty"`
	TTLMinutes int       `json:"ttl_minutes,omitempty"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	claims    *auth.CustomClaims
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// handleIssueToken mints a token for another client, such as a wall panel.
// A caller restricted to some masters can only mint tokens within them.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() {
		writeServiceUnavailable(w, "authentication is disabled; set security.jwt.secret")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	issuer := claimsFrom(r.Context())
	if scope := issuer.Scope(); scope != nil {
		if len(req.Masters) == 0 {
			writeForbidden(w, "scoped tokens cannot mint unrestricted tokens")
			return
		}
		for _, m := range req.Masters {
			if !scope.CanControl(m) {
				writeForbidden(w, "master outside token scope: "+m)
				return
			}
		}
	}

	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateAccessToken(auth.TokenRequest{
		Subject: req.Subject,
		Role:    req.Role,
		Masters: req.Masters,
		TTL:     ttl,
	}, s.secCfg.JWT.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRole) || errors.Is(err, auth.ErrInvalidSubject) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to issue token")
		return
	}

	s.logger.Info("token issued",
		"subject", req.Subject,
		"role", req.Role,
		"masters", req.Masters,
		"issued_by", issuer.Subject,
	)

	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(claimsFrom(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// issue stores a fresh ticket for claims.
func (t *ticketStore) issue(claims *auth.CustomClaims) string {
	ticket := generateTicket()

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		claims:    claims,
		expiresAt: time.Now().Add(ticketTTL),
	}
	t.mu.Unlock()
	return ticket
}

// redeem checks if a ticket is valid and consumes it (single-use).
func (t *ticketStore) redeem(ticket string) (*auth.CustomClaims, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return nil, false
	}

	delete(t.tickets, ticket)

	if !time.Now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.claims, true
}

// cleanExpired removes expired tickets from the store.
func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets periodically until the context is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
