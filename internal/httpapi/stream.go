package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"jurix.app/internal/authz"
	"jurix.app/internal/session"
)

// handleSessionEvents streams revocation hints over Server-Sent Events. The
// hint only tells the client to re-check now instead of waiting out its poll
// interval; the verdict still comes from the validator.
func (a *API) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.cfg.Broker == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	claims, ok := session.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.cfg.Broker.Subscribe(ctx)

	// Initial comment so proxies commit the response headers.
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	// Admins watch the whole tenant; everyone else only their own hints.
	wide := authz.Role(claims.Role).Omnipotent()

	for event := range ch {
		if event.TenantID != claims.TenantID {
			continue
		}
		if !wide && event.UserID != "" && event.UserID != claims.Subject {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
