package httpapi

import (
	"context"
	"net/http"
	"testing"

	"jurix.app/internal/session"
)

func internalHeaders() map[string]string {
	return map[string]string{"X-Internal-Secret": testInternalSecret}
}

func TestInternalValidateStatusCodes(t *testing.T) {
	api := newTestAPI(t)
	tenantID, userID := api.seedTenantUser("ADVOGADO")
	ctx := context.Background()

	fresh := map[string]any{
		"tenantId":             tenantID,
		"userId":               userID,
		"tenantSessionVersion": 1,
		"userSessionVersion":   1,
	}
	resp := api.post("/internal/session/validate", fresh, internalHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fresh session: got %d", resp.StatusCode)
	}
	result := decode[session.Result](t, resp)
	if !result.Valid {
		t.Fatalf("fresh session reported invalid: %+v", result)
	}

	// Force-logout style bump turns the same claims stale.
	if _, err := api.store.BumpUser(ctx, tenantID, userID, "FORCE_LOGOUT"); err != nil {
		t.Fatalf("bump user: %v", err)
	}
	resp = api.post("/internal/session/validate", fresh, internalHeaders())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale session: got %d", resp.StatusCode)
	}
	result = decode[session.Result](t, resp)
	if result.Reason != session.ReasonVersionMismatch {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
	if result.Entity != session.EntityUser {
		t.Fatalf("unexpected entity: %q", result.Entity)
	}

	// Unknown records map to 404 so edges can distinguish deletion from
	// revocation.
	resp = api.post("/internal/session/validate", map[string]any{
		"tenantId":             "ten-nope",
		"userId":               userID,
		"tenantSessionVersion": 1,
		"userSessionVersion":   1,
	}, internalHeaders())
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown tenant: got %d", resp.StatusCode)
	}
	result = decode[session.Result](t, resp)
	if result.Reason != session.ReasonTenantNotFound {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}

	// Versions below the floor are malformed claims.
	resp = api.post("/internal/session/validate", map[string]any{
		"tenantId":             tenantID,
		"userId":               userID,
		"tenantSessionVersion": 0,
		"userSessionVersion":   0,
	}, internalHeaders())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("below-floor claims: got %d", resp.StatusCode)
	}
}

func TestInternalValidateRequiresSecret(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/internal/session/validate", map[string]any{
		"tenantId": "ten-1", "userId": "usr-1", "tenantSessionVersion": 1, "userSessionVersion": 1,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing secret: got %d", resp.StatusCode)
	}

	resp2 := api.post("/internal/session/validate", map[string]any{
		"tenantId": "ten-1", "userId": "usr-1", "tenantSessionVersion": 1, "userSessionVersion": 1,
	}, map[string]string{"X-Internal-Secret": "wrong"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong secret: got %d", resp2.StatusCode)
	}
}

func TestInternalValidateOperator(t *testing.T) {
	api := newTestAPI(t)
	api.store.mu.Lock()
	op := &session.OperatorState{ID: "op-9", Active: true, SessionVersion: 2}
	api.store.operators[op.ID] = op
	api.store.mu.Unlock()

	resp := api.post("/internal/session/validate", map[string]any{
		"operatorId":          "op-9",
		"userSessionVersion": 2,
	}, internalHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("operator validate: got %d", resp.StatusCode)
	}
	// Entity and reason are only populated on revocations.
	result := decode[session.Result](t, resp)
	if !result.Valid || result.Entity != "" || result.Reason != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	resp = api.post("/internal/session/validate", map[string]any{
		"operatorId":          "op-9",
		"userSessionVersion": 1,
	}, internalHeaders())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale operator validate: got %d", resp.StatusCode)
	}
	result = decode[session.Result](t, resp)
	if result.Valid || result.Entity != session.EntityOperator || result.Reason != session.ReasonVersionMismatch {
		t.Fatalf("unexpected stale result: %+v", result)
	}
}

func TestSessionCheck(t *testing.T) {
	api := newTestAPI(t)
	tenantID, userID := api.seedTenantUser("ADVOGADO")
	token := api.tokenFor(tenantID, userID)

	resp := api.post("/v1/session/check", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session check: got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("unexpected cache-control: %q", cc)
	}
	body := decode[sessionCheckResponse](t, resp)
	if !body.Valid {
		t.Fatalf("fresh session reported invalid: %+v", body)
	}
	if body.PollInterval == "" {
		t.Fatalf("missing poll interval")
	}

	// A suspended tenant flips the answer without a new token. The response
	// stays 200: revocation is the payload, not a transport failure.
	if err := api.store.SetTenantStatus(context.Background(), tenantID, session.TenantSuspended, "inadimplência"); err != nil {
		t.Fatalf("suspend tenant: %v", err)
	}
	resp = api.post("/v1/session/check", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoked check: got %d", resp.StatusCode)
	}
	body = decode[sessionCheckResponse](t, resp)
	if body.Valid {
		t.Fatalf("suspended tenant still valid")
	}
	if body.Reason != string(session.TenantSuspended) {
		t.Fatalf("unexpected reason: %q", body.Reason)
	}
}

func TestSessionCheckRejectsOtherUser(t *testing.T) {
	api := newTestAPI(t)
	tenantID, userID := api.seedTenantUser("ADVOGADO")
	token := api.tokenFor(tenantID, userID)

	resp := api.post("/v1/session/check", map[string]any{"userId": "usr-other"}, authHeaders(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("other user's session: got %d", resp.StatusCode)
	}
}

func TestSessionCheckRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	resp := api.post("/v1/session/check", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous check: got %d", resp.StatusCode)
	}
}
