package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/auth"
)

// -- Mock Repositories --

type mockUserRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{store: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) UpdateProfile(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name, existing.Email, existing.Phone = u.Name, u.Email, u.Phone
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	existing.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id uuid.UUID, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	existing.Role = role
	return nil
}

func (m *mockUserRepo) List(_ context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.store {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.Name+" "+u.Email), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return page(out, limit, offset), len(out), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type mockPatientRepo struct {
	mu      sync.Mutex
	users   *mockUserRepo
	store   map[uuid.UUID]*Patient
	treated map[[2]uuid.UUID]bool
}

func newMockPatientRepo(users *mockUserRepo) *mockPatientRepo {
	return &mockPatientRepo{users: users, store: make(map[uuid.UUID]*Patient), treated: make(map[[2]uuid.UUID]bool)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) withUser(p *Patient) *Patient {
	cp := *p
	if u, err := m.users.GetByID(context.Background(), p.UserID); err == nil {
		cp.Name, cp.Email, cp.Phone = u.Name, u.Email, u.Phone
	}
	return &cp
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.withUser(p), nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.UserID == userID {
			return m.withUser(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) EnsureForUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := m.GetByUserID(ctx, userID); err == nil {
		return nil
	}
	return m.Create(ctx, &Patient{UserID: userID})
}

func (m *mockPatientRepo) IsTreatedBy(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.treated[[2]uuid.UUID{patientID, doctorID}], nil
}

func (m *mockPatientRepo) treat(patientID, doctorID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treated[[2]uuid.UUID{patientID, doctorID}] = true
}

type mockDoctorRepo struct {
	mu    sync.Mutex
	users *mockUserRepo
	store map[uuid.UUID]*Doctor
}

func newMockDoctorRepo(users *mockUserRepo) *mockDoctorRepo {
	return &mockDoctorRepo{users: users, store: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) withUser(d *Doctor) *Doctor {
	cp := *d
	if u, err := m.users.GetByID(context.Background(), d.UserID); err == nil {
		cp.Name, cp.Email, cp.Phone = u.Name, u.Email, u.Phone
	}
	return &cp
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.withUser(d), nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.store {
		if d.UserID == userID {
			return m.withUser(d), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockDoctorRepo) LockByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) EnsureForUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := m.GetByUserID(ctx, userID); err == nil {
		return nil
	}
	return m.Create(ctx, &Doctor{UserID: userID})
}

func (m *mockDoctorRepo) List(_ context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Doctor
	for _, d := range m.store {
		if f.Specialty != "" && !strings.EqualFold(d.Specialty, f.Specialty) {
			continue
		}
		out = append(out, m.withUser(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

type mockSessionRepo struct {
	mu    sync.Mutex
	users *mockUserRepo
	store map[uuid.UUID]*Session
}

func newMockSessionRepo(users *mockUserRepo) *mockSessionRepo {
	return &mockSessionRepo{users: users, store: make(map[uuid.UUID]*Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetActiveByTokenHash(ctx context.Context, hash string, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.TokenHash != hash || s.RevokedAt != nil || !s.ExpiresAt.After(now) {
			continue
		}
		u, err := m.users.GetByID(ctx, s.UserID)
		if err != nil {
			return nil, ErrNotFound
		}
		cp := *s
		cp.Role = u.Role
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockSessionRepo) Revoke(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.store[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID, keep *uuid.UUID, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.store {
		if s.UserID != userID || s.RevokedAt != nil || (keep != nil && *keep == id) {
			continue
		}
		s.RevokedAt = &now
		n++
	}
	return n, nil
}

func (m *mockSessionRepo) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.store {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) active(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.store {
		if s.UserID == userID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

type mockResetRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*PasswordReset
}

func newMockResetRepo() *mockResetRepo {
	return &mockResetRepo{store: make(map[uuid.UUID]*PasswordReset)}
}

func (m *mockResetRepo) Create(_ context.Context, r *PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockResetRepo) GetActive(_ context.Context, userID uuid.UUID, hash string, now time.Time) (*PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.store {
		if r.UserID == userID && r.TokenHash == hash && r.UsedAt == nil && r.ExpiresAt.After(now) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockResetRepo) MarkUsed(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok || r.UsedAt != nil {
		return false, nil
	}
	r.UsedAt = &now
	return true, nil
}

func (m *mockResetRepo) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.store {
		if r.ExpiresAt.Before(cutoff) {
			delete(m.store, id)
			n++
		}
	}
	return n, nil
}

// passTx runs fn without a transaction.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// captureNotifier keeps the last raw reset token.
type captureNotifier struct {
	mu    sync.Mutex
	token string
}

func (n *captureNotifier) SendResetToken(_ context.Context, _ *User, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.token = token
	return nil
}

func (n *captureNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.token
}
