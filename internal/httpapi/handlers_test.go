package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"jurix.app/internal/audit"
	"jurix.app/internal/authz"
	"jurix.app/internal/session"
	"jurix.app/internal/stream"
)

const testInternalSecret = "internal-test-secret"

// memStore is an in-memory backing for the whole API: resolver reads, the
// admin surface, the session ledger and the audit trail all hit the same
// maps, so cross-cutting effects (a grant change bumping holders) are
// observable end to end.
type memStore struct {
	mu        sync.Mutex
	seq       int
	tenants   map[string]*session.TenantState
	users     map[string]*session.UserState
	operators map[string]*session.OperatorState
	positions map[string]*authz.Position
	holders   map[string][]string
	overrides map[string]authz.Override
	entries   []audit.Entry
}

func newMemStore() *memStore {
	return &memStore{
		tenants:   map[string]*session.TenantState{},
		users:     map[string]*session.UserState{},
		operators: map[string]*session.OperatorState{},
		positions: map[string]*authz.Position{},
		holders:   map[string][]string{},
		overrides: map[string]authz.Override{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func overrideKey(tenantID, userID, module, action string) string {
	return tenantID + "|" + userID + "|" + module + "|" + action
}

// --- authz.Store ---

func (m *memStore) OverridesForUser(_ context.Context, tenantID, userID string) ([]authz.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []authz.Override
	for _, o := range m.overrides {
		if o.TenantID == tenantID && o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ActiveGrantsForUser(_ context.Context, tenantID, userID string) ([]authz.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []authz.Grant
	for pid, uids := range m.holders {
		p, ok := m.positions[pid]
		if !ok || !p.Active || p.TenantID != tenantID {
			continue
		}
		for _, uid := range uids {
			if uid == userID {
				out = append(out, p.Grants...)
			}
		}
	}
	return out, nil
}

// --- authz.PositionStore ---

func (m *memStore) CreatePosition(_ context.Context, p *authz.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.positions {
		if existing.TenantID == p.TenantID && strings.EqualFold(existing.Name, p.Name) {
			return authz.ErrConflict
		}
	}
	p.ID = m.nextID("pos")
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.positions[p.ID] = &cp
	return nil
}

func (m *memStore) GetPosition(_ context.Context, id string) (*authz.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListPositions(_ context.Context, tenantID string) ([]*authz.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*authz.Position
	for _, p := range m.positions {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdatePosition(_ context.Context, id string, upd authz.PositionUpdate) (*authz.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Level != nil {
		p.Level = *upd.Level
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (m *memStore) SetPositionActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return authz.ErrNotFound
	}
	p.Active = active
	return nil
}

func (m *memStore) SetPositionGrants(_ context.Context, id string, grants []authz.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return authz.ErrNotFound
	}
	p.Grants = append([]authz.Grant(nil), grants...)
	p.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) AssignPosition(_ context.Context, tenantID, userID, positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionID]
	if !ok {
		return authz.ErrNotFound
	}
	if p.TenantID != tenantID {
		return authz.ErrInvalidInput
	}
	for _, uid := range m.holders[positionID] {
		if uid == userID {
			return authz.ErrConflict
		}
	}
	m.holders[positionID] = append(m.holders[positionID], userID)
	return nil
}

func (m *memStore) UnassignPosition(_ context.Context, userID, positionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	uids := m.holders[positionID]
	for i, uid := range uids {
		if uid == userID {
			m.holders[positionID] = append(uids[:i], uids[i+1:]...)
			return nil
		}
	}
	return authz.ErrNotFound
}

func (m *memStore) PositionUserIDs(_ context.Context, positionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.holders[positionID]...), nil
}

func (m *memStore) PutOverride(_ context.Context, o authz.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.CreatedAt = time.Now()
	m.overrides[overrideKey(o.TenantID, o.UserID, o.Module, o.Action)] = o
	return nil
}

func (m *memStore) RemoveOverride(_ context.Context, tenantID, userID, module, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := overrideKey(tenantID, userID, module, action)
	if _, ok := m.overrides[key]; !ok {
		return authz.ErrNotFound
	}
	delete(m.overrides, key)
	return nil
}

// --- session.Ledger ---

func (m *memStore) TenantState(_ context.Context, tenantID string) (*session.TenantState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UserState(_ context.Context, tenantID, userID string) (*session.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, session.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) OperatorState(_ context.Context, operatorID string) (*session.OperatorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operators[operatorID]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *memStore) BumpTenant(_ context.Context, tenantID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return 0, session.ErrNotFound
	}
	t.SessionVersion++
	t.StatusReason = reason
	t.StatusChangedAt = time.Now()
	return t.SessionVersion, nil
}

func (m *memStore) BumpUser(_ context.Context, tenantID, userID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TenantID != tenantID {
		return 0, session.ErrNotFound
	}
	u.SessionVersion++
	u.StatusReason = reason
	u.StatusChangedAt = time.Now()
	return u.SessionVersion, nil
}

// --- session.Directory ---

func (m *memStore) CreateTenant(_ context.Context, name string) (*session.TenantState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, session.ErrInvalidInput
	}
	t := &session.TenantState{
		ID:             m.nextID("ten"),
		Name:           name,
		Status:         session.TenantActive,
		SessionVersion: 1,
		PlanRevision:   1,
	}
	m.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *memStore) SetTenantStatus(_ context.Context, tenantID string, status session.TenantStatus, reason string) error {
	if !status.Valid() {
		return session.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return session.ErrNotFound
	}
	t.Status = status
	t.StatusReason = reason
	t.StatusChangedAt = time.Now()
	t.SessionVersion++
	return nil
}

func (m *memStore) SetTenantPlan(_ context.Context, tenantID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return session.ErrNotFound
	}
	t.PlanRevision++
	t.SessionVersion++
	t.StatusReason = reason
	return nil
}

func (m *memStore) CreateUser(_ context.Context, u *session.UserState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email taken", session.ErrInvalidInput)
		}
	}
	u.ID = m.nextID("usr")
	u.SessionVersion = 1
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) SetUserRole(_ context.Context, tenantID, userID, role, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TenantID != tenantID {
		return session.ErrNotFound
	}
	u.Role = role
	u.SessionVersion++
	u.StatusReason = reason
	return nil
}

func (m *memStore) SetUserActive(_ context.Context, tenantID, userID string, active bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.TenantID != tenantID {
		return session.ErrNotFound
	}
	u.Active = active
	u.SessionVersion++
	u.StatusReason = reason
	u.StatusChangedAt = time.Now()
	return nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*session.UserState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

func (m *memStore) FindOperatorByEmail(_ context.Context, email string) (*session.OperatorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, op := range m.operators {
		if strings.ToLower(op.Email) == email {
			cp := *op
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

// --- audit.Store ---

func (m *memStore) Append(_ context.Context, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memStore) History(_ context.Context, q audit.HistoryQuery) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Entry
	for _, e := range m.entries {
		if e.TenantID != q.TenantID {
			continue
		}
		if q.Entity != "" && e.Entity != q.Entity {
			continue
		}
		if q.EntityID != "" && e.EntityID != q.EntityID {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) PurgeBefore(_ context.Context, tenantID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []audit.Entry
	var purged int64
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.OccurredAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

func (m *memStore) lastAction(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		t.Fatalf("no audit entries recorded")
	}
	return m.entries[len(m.entries)-1].Action
}

// --- harness ---

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	store   *memStore
	tokens  *session.TokenSource
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := newMemStore()
	auditor := audit.NewLogger(store)

	resolver, err := authz.NewResolver(store)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	admin, err := authz.NewAdmin(store, auditor, store)
	if err != nil {
		t.Fatalf("new admin: %v", err)
	}
	validator, err := session.NewValidator(store)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	tokens, err := session.NewTokenSource("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	broker := stream.NewBroker()
	api := New(Config{
		Version:        "test",
		Resolver:       resolver,
		Admin:          admin,
		Validator:      validator,
		Tokens:         tokens,
		Ledger:         store,
		Directory:      store,
		Auditor:        auditor,
		AuditStore:     store,
		Broker:         broker,
		Publisher:      stream.LocalPublisher{Broker: broker},
		InternalSecret: testInternalSecret,
		RateBurst:      1000,
		RatePerSec:     1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		store:   store,
		tokens:  tokens,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) del(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

// seedTenantUser provisions a tenant plus one user directly in the store and
// returns their ids.
func (c *apiClient) seedTenantUser(role string) (tenantID, userID string) {
	c.t.Helper()
	ctx := context.Background()
	tenant, err := c.store.CreateTenant(ctx, fmt.Sprintf("Escritório %d", c.store.seq+1))
	if err != nil {
		c.t.Fatalf("seed tenant: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("senha-forte"), bcrypt.MinCost)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	user := &session.UserState{
		TenantID:     tenant.ID,
		Email:        fmt.Sprintf("user%d@%s.adv.br", c.store.seq, tenant.ID),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	if err := c.store.CreateUser(ctx, user); err != nil {
		c.t.Fatalf("seed user: %v", err)
	}
	return tenant.ID, user.ID
}

// seedUserInTenant adds another user to an existing tenant.
func seedUserInTenant(t *testing.T, api *apiClient, tenantID, role string) (string, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("senha-forte"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &session.UserState{
		TenantID:     tenantID,
		Email:        fmt.Sprintf("user%d@%s.adv.br", api.store.seq+1, tenantID),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	if err := api.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return tenantID, user.ID
}

// tokenFor mints a session token straight from the source, bypassing the
// credential endpoint.
func (c *apiClient) tokenFor(tenantID, userID string) string {
	c.t.Helper()
	ctx := context.Background()
	user, err := c.store.UserState(ctx, tenantID, userID)
	if err != nil {
		c.t.Fatalf("user state: %v", err)
	}
	tenant, err := c.store.TenantState(ctx, tenantID)
	if err != nil {
		c.t.Fatalf("tenant state: %v", err)
	}
	token, _, err := c.tokens.Issue(user, tenant)
	if err != nil {
		c.t.Fatalf("issue token: %v", err)
	}
	return token
}

func (c *apiClient) operatorToken() string {
	c.t.Helper()
	c.store.mu.Lock()
	op := &session.OperatorState{ID: c.store.nextID("op"), Active: true, SessionVersion: 1}
	c.store.operators[op.ID] = op
	c.store.mu.Unlock()
	token, _, err := c.tokens.IssueOperator(op, "SUPER_ADMIN")
	if err != nil {
		c.t.Fatalf("issue operator token: %v", err)
	}
	return token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "jurix-core" {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = api.get("/v1/info", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected info status: %d", resp.StatusCode)
	}
	info := decode[map[string]any](t, resp)
	if info["version"] != "test" {
		t.Fatalf("unexpected version: %v", info["version"])
	}
}

func TestAuthTokenFlow(t *testing.T) {
	api := newTestAPI(t)
	tenantID, userID := api.seedTenantUser("ADVOGADO")

	user, err := api.store.UserState(context.Background(), tenantID, userID)
	if err != nil {
		t.Fatalf("user state: %v", err)
	}

	resp := api.post("/v1/auth/token", map[string]any{
		"email": user.Email,
		"senha": "senha-forte",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](t, resp)
	if payload.Token == "" {
		t.Fatalf("empty token issued")
	}
	if got := api.store.lastAction(t); got != "auth.token.issued" {
		t.Fatalf("unexpected audit action: %q", got)
	}

	// Wrong password and unknown email both read as invalid credentials.
	resp = api.post("/v1/auth/token", map[string]any{"email": user.Email, "senha": "errada"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.post("/v1/auth/token", map[string]any{"email": "ninguem@x.adv.br", "senha": "tanto-faz"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown email: got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthTokenOperator(t *testing.T) {
	api := newTestAPI(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("segredo-operador"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	api.store.mu.Lock()
	op := &session.OperatorState{
		ID:             api.store.nextID("op"),
		Email:          "operador@jurix.app",
		PasswordHash:   string(hash),
		Active:         true,
		SessionVersion: 1,
	}
	api.store.operators[op.ID] = op
	api.store.mu.Unlock()

	resp := api.post("/v1/auth/token", map[string]any{
		"email": "Operador@Jurix.app",
		"senha": "segredo-operador",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("operator login: got %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](t, resp)

	// The token must open the operator-only provisioning surface.
	resp = api.post("/v1/tenants", map[string]any{"nome": "Operado & Cia"}, authHeaders(payload.Token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("provision with operator token: got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/auth/token", map[string]any{
		"email": "operador@jurix.app",
		"senha": "errada",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong operator password: got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthTokenRefusesDisabledAndSuspended(t *testing.T) {
	api := newTestAPI(t)
	tenantID, userID := api.seedTenantUser("ADVOGADO")
	ctx := context.Background()

	user, _ := api.store.UserState(ctx, tenantID, userID)
	if err := api.store.SetUserActive(ctx, tenantID, userID, false, "manual"); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	resp := api.post("/v1/auth/token", map[string]any{"email": user.Email, "senha": "senha-forte"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("disabled user: got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if err := api.store.SetUserActive(ctx, tenantID, userID, true, ""); err != nil {
		t.Fatalf("re-enable user: %v", err)
	}
	if err := api.store.SetTenantStatus(ctx, tenantID, session.TenantSuspended, "inadimplência"); err != nil {
		t.Fatalf("suspend tenant: %v", err)
	}
	resp = api.post("/v1/auth/token", map[string]any{"email": user.Email, "senha": "senha-forte"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("suspended tenant: got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	api := newTestAPI(t)

	// Without credentials the auth gate answers before routing; route
	// existence is not leaked to anonymous callers.
	resp := api.get("/v1/nope", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous: got %d, want 401", resp.StatusCode)
	}

	tenantID, userID := api.seedTenantUser("ADVOGADO")
	token := api.tokenFor(tenantID, userID)
	resp = api.get("/v1/nope", nil, authHeaders(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("authenticated: got %d, want 404", resp.StatusCode)
	}
}
