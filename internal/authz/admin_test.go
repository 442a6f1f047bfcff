package authz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"jurix.app/internal/audit"
)

type memPositionStore struct {
	positions   map[string]*Position
	assignments map[string][]string // positionID -> userIDs
	overrides   map[string]Override
	nextID      int
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{
		positions:   make(map[string]*Position),
		assignments: make(map[string][]string),
		overrides:   make(map[string]Override),
	}
}

func (s *memPositionStore) CreatePosition(_ context.Context, p *Position) error {
	for _, existing := range s.positions {
		if existing.TenantID == p.TenantID && strings.EqualFold(existing.Name, p.Name) {
			return ErrConflict
		}
	}
	s.nextID++
	p.ID = fmt.Sprintf("pos-%d", s.nextID)
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *memPositionStore) GetPosition(_ context.Context, id string) (*Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memPositionStore) ListPositions(_ context.Context, tenantID string) ([]*Position, error) {
	var out []*Position
	for _, p := range s.positions {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memPositionStore) UpdatePosition(_ context.Context, id string, upd PositionUpdate) (*Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Level != nil {
		p.Level = *upd.Level
	}
	cp := *p
	return &cp, nil
}

func (s *memPositionStore) SetPositionActive(_ context.Context, id string, active bool) error {
	p, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = active
	return nil
}

func (s *memPositionStore) SetPositionGrants(_ context.Context, id string, grants []Grant) error {
	p, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	p.Grants = append([]Grant(nil), grants...)
	return nil
}

func (s *memPositionStore) AssignPosition(_ context.Context, _, userID, positionID string) error {
	if _, ok := s.positions[positionID]; !ok {
		return ErrNotFound
	}
	s.assignments[positionID] = append(s.assignments[positionID], userID)
	return nil
}

func (s *memPositionStore) UnassignPosition(_ context.Context, userID, positionID string) error {
	users := s.assignments[positionID]
	for i, u := range users {
		if u == userID {
			s.assignments[positionID] = append(users[:i], users[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memPositionStore) PositionUserIDs(_ context.Context, positionID string) ([]string, error) {
	return append([]string(nil), s.assignments[positionID]...), nil
}

func (s *memPositionStore) PutOverride(_ context.Context, o Override) error {
	s.overrides[o.UserID+"|"+o.Module+"."+o.Action] = o
	return nil
}

func (s *memPositionStore) RemoveOverride(_ context.Context, _, userID, module, action string) error {
	key := userID + "|" + module + "." + action
	if _, ok := s.overrides[key]; !ok {
		return ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

type memAuditStore struct {
	entries []audit.Entry
}

func (s *memAuditStore) Append(_ context.Context, e *audit.Entry) error {
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memAuditStore) History(context.Context, audit.HistoryQuery) ([]audit.Entry, error) {
	return s.entries, nil
}

func (s *memAuditStore) PurgeBefore(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (s *memAuditStore) last(t *testing.T) audit.Entry {
	t.Helper()
	if len(s.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return s.entries[len(s.entries)-1]
}

type recordingBumper struct {
	bumped []string // "tenantID/userID"
}

func (b *recordingBumper) BumpUser(_ context.Context, tenantID, userID, reason string) (int64, error) {
	if reason != "PERMISSIONS_CHANGED" {
		return 0, fmt.Errorf("unexpected bump reason %q", reason)
	}
	b.bumped = append(b.bumped, tenantID+"/"+userID)
	return 2, nil
}

func newTestAdmin(t *testing.T) (*Admin, *memPositionStore, *memAuditStore, *recordingBumper) {
	t.Helper()
	store := newMemPositionStore()
	auditStore := &memAuditStore{}
	bumper := &recordingBumper{}
	admin, err := NewAdmin(store, audit.NewLogger(auditStore), bumper)
	if err != nil {
		t.Fatalf("NewAdmin: %v", err)
	}
	return admin, store, auditStore, bumper
}

func TestCreatePositionAuditsAndRejectsDuplicates(t *testing.T) {
	admin, _, auditStore, bumper := newTestAdmin(t)
	grants := []Grant{{Module: "agenda", Action: "criar", Allowed: true}}

	p, err := admin.CreatePosition(context.Background(), "ten-1", "Estagiário", 1, grants)
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	if p.ID == "" || !p.Active {
		t.Fatalf("created position not initialised: %+v", p)
	}
	entry := auditStore.last(t)
	if entry.Action != "cargo.create" || entry.EntityID != p.ID {
		t.Fatalf("audit entry = %+v", entry)
	}
	if len(bumper.bumped) != 0 {
		t.Fatal("creating a position must not bump anyone")
	}

	if _, err := admin.CreatePosition(context.Background(), "ten-1", "Estagiário", 1, nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}
}

func TestSetGrantsBumpsEveryHolder(t *testing.T) {
	admin, _, auditStore, bumper := newTestAdmin(t)
	p, err := admin.CreatePosition(context.Background(), "ten-1", "Financeiro Jr", 2, []Grant{
		{Module: "financeiro", Action: "visualizar", Allowed: true},
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	for _, uid := range []string{"usr-1", "usr-2"} {
		if err := admin.AssignPosition(context.Background(), "ten-1", uid, p.ID); err != nil {
			t.Fatalf("AssignPosition(%s): %v", uid, err)
		}
	}
	bumper.bumped = nil

	err = admin.SetGrants(context.Background(), p.ID, []Grant{
		{Module: "financeiro", Action: "visualizar", Allowed: true},
		{Module: "financeiro", Action: "criar", Allowed: true},
	})
	if err != nil {
		t.Fatalf("SetGrants: %v", err)
	}

	want := []string{"ten-1/usr-1", "ten-1/usr-2"}
	if !reflect.DeepEqual(bumper.bumped, want) {
		t.Fatalf("bumped %v, want %v", bumper.bumped, want)
	}
	entry := auditStore.last(t)
	if entry.Action != "cargo.grants.update" {
		t.Fatalf("audit action = %s", entry.Action)
	}
	if !reflect.DeepEqual(entry.ChangedFields, []string{"financeiro.criar"}) {
		t.Fatalf("changed fields = %v, want only the added grant", entry.ChangedFields)
	}
}

func TestSetGrantsRecordsRemovedKeys(t *testing.T) {
	admin, _, auditStore, _ := newTestAdmin(t)
	p, _ := admin.CreatePosition(context.Background(), "ten-1", "Recepção", 1, []Grant{
		{Module: "agenda", Action: "criar", Allowed: true},
		{Module: "agenda", Action: "editar", Allowed: true},
	})
	if err := admin.SetGrants(context.Background(), p.ID, []Grant{
		{Module: "agenda", Action: "criar", Allowed: true},
	}); err != nil {
		t.Fatalf("SetGrants: %v", err)
	}
	entry := auditStore.last(t)
	if !reflect.DeepEqual(entry.ChangedFields, []string{"agenda.editar"}) {
		t.Fatalf("changed fields = %v, want the removed grant", entry.ChangedFields)
	}
}

func TestDeactivatePositionDoesNotBump(t *testing.T) {
	admin, store, auditStore, bumper := newTestAdmin(t)
	p, _ := admin.CreatePosition(context.Background(), "ten-1", "Suporte", 1, nil)
	if err := admin.AssignPosition(context.Background(), "ten-1", "usr-1", p.ID); err != nil {
		t.Fatalf("AssignPosition: %v", err)
	}
	bumper.bumped = nil

	if err := admin.DeactivatePosition(context.Background(), p.ID); err != nil {
		t.Fatalf("DeactivatePosition: %v", err)
	}
	got, _ := store.GetPosition(context.Background(), p.ID)
	if got.Active {
		t.Fatal("position still active")
	}
	if len(bumper.bumped) != 0 {
		t.Fatal("deactivation must not revoke holder sessions")
	}
	if auditStore.last(t).Action != "cargo.deactivate" {
		t.Fatalf("audit action = %s", auditStore.last(t).Action)
	}
}

func TestOverrideLifecycleBumpsUser(t *testing.T) {
	admin, store, auditStore, bumper := newTestAdmin(t)
	o := Override{TenantID: "ten-1", UserID: "usr-1", Module: "processos", Action: "excluir", Allowed: false}

	if err := admin.PutOverride(context.Background(), o); err != nil {
		t.Fatalf("PutOverride: %v", err)
	}
	if auditStore.last(t).Action != "override.set" {
		t.Fatalf("audit action = %s", auditStore.last(t).Action)
	}
	if !reflect.DeepEqual(bumper.bumped, []string{"ten-1/usr-1"}) {
		t.Fatalf("bumped %v after set", bumper.bumped)
	}

	if err := admin.RemoveOverride(context.Background(), "ten-1", "usr-1", "processos", "excluir"); err != nil {
		t.Fatalf("RemoveOverride: %v", err)
	}
	if len(store.overrides) != 0 {
		t.Fatal("override still present after removal")
	}
	if auditStore.last(t).Action != "override.remove" {
		t.Fatalf("audit action = %s", auditStore.last(t).Action)
	}
	if len(bumper.bumped) != 2 {
		t.Fatalf("bumped %v, want a second bump after removal", bumper.bumped)
	}

	if err := admin.PutOverride(context.Background(), Override{TenantID: "ten-1", UserID: "usr-1", Module: "x!", Action: "criar"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed key: got %v, want ErrInvalidInput", err)
	}
}

func TestSeedDefaultPositionsIsIdempotent(t *testing.T) {
	admin, store, _, _ := newTestAdmin(t)

	first, err := admin.SeedDefaultPositions(context.Background(), "ten-1")
	if err != nil {
		t.Fatalf("SeedDefaultPositions: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("first seed created nothing")
	}

	second, err := admin.SeedDefaultPositions(context.Background(), "ten-1")
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second seed created %d positions, want 0", len(second))
	}

	all, _ := store.ListPositions(context.Background(), "ten-1")
	if len(all) != len(first) {
		t.Fatalf("store holds %d positions, want %d", len(all), len(first))
	}
	for _, p := range all {
		if !p.Active {
			t.Fatalf("seeded position %q is inactive", p.Name)
		}
	}
}
