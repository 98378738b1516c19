package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/domain/identity"
)

// -- Mock Repositories --

type mockDirectory struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		patients: make(map[uuid.UUID]*identity.Patient),
		doctors:  make(map[uuid.UUID]*identity.Doctor),
	}
}

func (m *mockDirectory) addPatient(name string) *identity.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &identity.Patient{ID: uuid.New(), UserID: uuid.New(), Name: name}
	m.patients[p.ID] = p
	return p
}

func (m *mockDirectory) addDoctor(name, specialty string) *identity.Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &identity.Doctor{ID: uuid.New(), UserID: uuid.New(), Name: name, Specialty: specialty}
	m.doctors[d.ID] = d
	return d
}

type mockPatients struct{ *mockDirectory }

func (m mockPatients) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, identity.ErrNotFound
}

type mockDoctors struct{ *mockDirectory }

func (m mockDoctors) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m mockDoctors) LockByID(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return d, nil
}

// mockAppointmentRepo enforces the one-open-appointment-per-slot rule the
// way the partial unique index does.
type mockAppointmentRepo struct {
	mu    sync.Mutex
	dir   *mockDirectory
	store map[uuid.UUID]*Appointment
	// writes counts successful mutations.
	writes int
}

func newMockAppointmentRepo(dir *mockDirectory) *mockAppointmentRepo {
	return &mockAppointmentRepo{dir: dir, store: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) slotHeld(doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) bool {
	for _, a := range m.store {
		if a.DoctorID == doctorID && a.TimeAppointment.Equal(at) && a.Status != StatusCancelled &&
			(exclude == nil || *exclude != a.ID) {
			return true
		}
	}
	return false
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotHeld(a.DoctorID, a.TimeAppointment, nil) {
		return ErrSlotTaken
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
	m.writes++
	return nil
}

func (m *mockAppointmentRepo) withDisplay(a *Appointment) *Appointment {
	cp := *a
	m.dir.mu.Lock()
	defer m.dir.mu.Unlock()
	if p, ok := m.dir.patients[a.PatientID]; ok {
		cp.PatientUserID, cp.PatientName = p.UserID, p.Name
	}
	if d, ok := m.dir.doctors[a.DoctorID]; ok {
		cp.DoctorUserID, cp.DoctorName, cp.DoctorSpecialty = d.UserID, d.Name, d.Specialty
	}
	return &cp
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.withDisplay(a), nil
}

func (m *mockAppointmentRepo) LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockAppointmentRepo) SlotTaken(_ context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotHeld(doctorID, at, exclude), nil
}

func (m *mockAppointmentRepo) Reschedule(_ context.Context, id uuid.UUID, at time.Time, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if m.slotHeld(a.DoctorID, at, &id) {
		return ErrSlotTaken
	}
	a.TimeAppointment, a.Status = at, status
	m.writes++
	return nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.store[a.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status, existing.CancellationReason, existing.CancelledBy = a.Status, a.CancellationReason, a.CancelledBy
	m.writes++
	return nil
}

func (m *mockAppointmentRepo) UpdateDoctorNote(_ context.Context, id uuid.UUID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.DoctorNote = &note
	m.writes++
	return nil
}

func (m *mockAppointmentRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.store {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != nil && a.TimeAppointment.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.TimeAppointment.Before(*f.To) {
			continue
		}
		out = append(out, m.withDisplay(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeAppointment.After(out[j].TimeAppointment) })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockAppointmentRepo) status(id uuid.UUID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id].Status
}

func (m *mockAppointmentRepo) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// passTx runs fn without a transaction.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// serialTx runs one fn at a time, standing in for the doctor row lock.
type serialTx struct {
	mu sync.Mutex
}

func (t *serialTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}
