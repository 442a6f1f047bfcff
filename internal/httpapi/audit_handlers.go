package httpapi

import (
	"net/http"

	"jurix.app/internal/audit"
)

func (a *API) handleAuditHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if claims.TenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant context required")
		return
	}

	q := audit.HistoryQuery{
		TenantID: claims.TenantID,
		Entity:   r.URL.Query().Get("entidade"),
		EntityID: r.URL.Query().Get("entidadeId"),
		UserID:   r.URL.Query().Get("usuarioId"),
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 0, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q.Limit = limit

	entries, err := a.cfg.AuditStore.History(r.Context(), q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit lookup failed")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entradas": entries})
}
