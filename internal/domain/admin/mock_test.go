package admin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/audit"
	"github.com/curameet/curameet/internal/platform/auth"
)

// -- Mock Stores --

// mockDB stands in for every table the admin service touches. writes counts
// mutations so tests can assert that rejected calls changed nothing.
type mockDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*identity.User
	patients map[uuid.UUID]bool
	doctors  map[uuid.UUID]bool
	sessions map[uuid.UUID]int
	expired  int64
	resets   int64
	writes   int
}

func newMockDB() *mockDB {
	return &mockDB{
		users:    make(map[uuid.UUID]*identity.User),
		patients: make(map[uuid.UUID]bool),
		doctors:  make(map[uuid.UUID]bool),
		sessions: make(map[uuid.UUID]int),
	}
}

func (m *mockDB) addUser(name string, role auth.Role) *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &identity.User{ID: uuid.New(), Name: name, Email: name + "@curameet.test", Role: role, CreatedAt: time.Now()}
	m.users[u.ID] = u
	switch role {
	case auth.RolePatient:
		m.patients[u.ID] = true
	case auth.RoleDoctor:
		m.doctors[u.ID] = true
	}
	m.sessions[u.ID] = 1
	return u
}

func (m *mockDB) role(id uuid.UUID) auth.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Role
}

func (m *mockDB) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// snapshot and restore cover roles only; callers hold mu.
func (m *mockDB) snapshot() map[uuid.UUID]auth.Role {
	out := make(map[uuid.UUID]auth.Role, len(m.users))
	for id, u := range m.users {
		out[id] = u.Role
	}
	return out
}

func (m *mockDB) restore(roles map[uuid.UUID]auth.Role) {
	for id, r := range roles {
		m.users[id].Role = r
	}
}

type mockUsers struct{ *mockDB }

func (m mockUsers) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m mockUsers) UpdateRole(_ context.Context, id uuid.UUID, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return identity.ErrNotFound
	}
	u.Role = role
	m.writes++
	return nil
}

func (m mockUsers) List(_ context.Context, f identity.UserFilter, limit, offset int) ([]*identity.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset >= total {
		return []*identity.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type mockProfiles struct {
	*mockDB
	doctor bool
}

func (m mockProfiles) EnsureForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.patients
	if m.doctor {
		set = m.doctors
	}
	if !set[userID] {
		set[userID] = true
		m.writes++
	}
	return nil
}

type mockSessions struct{ *mockDB }

func (m mockSessions) RevokeAllForUser(_ context.Context, userID uuid.UUID, _ *uuid.UUID, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(m.sessions[userID])
	m.sessions[userID] = 0
	m.writes++
	return n, nil
}

func (m mockSessions) Purge(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.expired
	m.expired = 0
	m.writes++
	return n, nil
}

type mockResets struct{ *mockDB }

func (m mockResets) Purge(_ context.Context, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.resets
	m.resets = 0
	m.writes++
	return n, nil
}

func (m *mockDB) stores() Stores {
	return Stores{
		Users:    mockUsers{m},
		Patients: mockProfiles{mockDB: m},
		Doctors:  mockProfiles{mockDB: m, doctor: true},
		Sessions: mockSessions{m},
		Resets:   mockResets{m},
	}
}

// rollbackTx undoes role changes when fn fails, like a database transaction.
type rollbackTx struct{ db *mockDB }

func (t rollbackTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.db.mu.Lock()
	saved := t.db.snapshot()
	writes := t.db.writes
	t.db.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.db.mu.Lock()
		t.db.restore(saved)
		t.db.writes = writes
		t.db.mu.Unlock()
		return err
	}
	return nil
}

// -- Mock Activity Store --

type mockAuditStore struct {
	mu      sync.Mutex
	entries []*audit.Entry
	deletes int
}

func (s *mockAuditStore) Record(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.New()
	s.entries = append(s.entries, e)
	return nil
}

func (s *mockAuditStore) Query(_ context.Context, f audit.Filter, limit, offset int) ([]*audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
			continue
		}
		if f.From != nil && e.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	total := len(out)
	if offset >= total {
		return []*audit.Entry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (s *mockAuditStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	kept := s.entries[:0]
	var n int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return n, nil
}

func (s *mockAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
