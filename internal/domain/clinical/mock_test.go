package clinical

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
)

// -- Mock Access --

type mockAccess struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
	treated  map[[2]uuid.UUID]bool
}

func newMockAccess() *mockAccess {
	return &mockAccess{
		patients: make(map[uuid.UUID]*identity.Patient),
		doctors:  make(map[uuid.UUID]*identity.Doctor),
		treated:  make(map[[2]uuid.UUID]bool),
	}
}

func (m *mockAccess) addPatient(name string) *identity.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &identity.Patient{ID: uuid.New(), UserID: uuid.New(), Name: name}
	m.patients[p.ID] = p
	return p
}

func (m *mockAccess) addDoctor(name string) *identity.Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &identity.Doctor{ID: uuid.New(), UserID: uuid.New(), Name: name}
	m.doctors[d.ID] = d
	return d
}

func (m *mockAccess) treat(patientID, doctorID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.treated[[2]uuid.UUID{patientID, doctorID}] = true
}

func (m *mockAccess) PatientByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apierror.NotFound("Patient")
	}
	return p, nil
}

func (m *mockAccess) GetPatient(ctx context.Context, caller auth.Identity, id uuid.UUID) (*identity.Patient, error) {
	switch caller.Role {
	case auth.RoleAdmin:
		return m.PatientByID(ctx, id)
	case auth.RolePatient:
		own, err := m.PatientForCaller(ctx, caller)
		if err != nil {
			return nil, err
		}
		if own.ID != id {
			return nil, apierror.Forbidden()
		}
		return own, nil
	case auth.RoleDoctor:
		d, err := m.DoctorForCaller(ctx, caller)
		if err != nil {
			return nil, err
		}
		if err := m.AuthorizeTreatingDoctor(ctx, d.ID, id); err != nil {
			return nil, err
		}
		return m.PatientByID(ctx, id)
	}
	return nil, apierror.Forbidden()
}

func (m *mockAccess) PatientForCaller(_ context.Context, caller auth.Identity) (*identity.Patient, error) {
	if caller.Role != auth.RolePatient {
		return nil, apierror.Forbidden()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.UserID == caller.UserID {
			return p, nil
		}
	}
	return nil, apierror.NotFound("Patient profile")
}

func (m *mockAccess) DoctorForCaller(_ context.Context, caller auth.Identity) (*identity.Doctor, error) {
	if caller.Role != auth.RoleDoctor {
		return nil, apierror.Forbidden()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if d.UserID == caller.UserID {
			return d, nil
		}
	}
	return nil, apierror.NotFound("Doctor profile")
}

func (m *mockAccess) AuthorizePatientAccess(ctx context.Context, caller auth.Identity, patientID, patientUserID uuid.UUID) error {
	switch caller.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RolePatient:
		if caller.UserID == patientUserID {
			return nil
		}
	case auth.RoleDoctor:
		d, err := m.DoctorForCaller(ctx, caller)
		if err != nil {
			return err
		}
		return m.AuthorizeTreatingDoctor(ctx, d.ID, patientID)
	}
	return apierror.Forbidden()
}

func (m *mockAccess) AuthorizeTreatingDoctor(_ context.Context, doctorID, patientID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.treated[[2]uuid.UUID{patientID, doctorID}] {
		return apierror.Forbidden()
	}
	return nil
}

// -- Mock Repository --

type mockRecordRepo struct {
	mu      sync.Mutex
	access  *mockAccess
	records map[uuid.UUID]*MedicalRecord
	failSet bool
}

func newMockRecordRepo(access *mockAccess) *mockRecordRepo {
	return &mockRecordRepo{access: access, records: make(map[uuid.UUID]*MedicalRecord)}
}

func (m *mockRecordRepo) view(r *MedicalRecord) *MedicalRecord {
	out := *r
	if r.File != nil {
		f := *r.File
		out.File = &f
	}
	m.access.mu.Lock()
	if p, ok := m.access.patients[r.PatientID]; ok {
		out.PatientName, out.PatientUserID = p.Name, p.UserID
	}
	if d, ok := m.access.doctors[r.DoctorID]; ok {
		out.DoctorName, out.DoctorUserID = d.Name, d.UserID
	}
	m.access.mu.Unlock()
	return &out
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	stored := *r
	m.records[r.ID] = &stored
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.view(r), nil
}

func (m *mockRecordRepo) Update(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[r.ID]
	if !ok {
		return ErrNotFound
	}
	stored.DiseaseName = r.DiseaseName
	stored.Notes = r.Notes
	stored.UpdatedAt = time.Now()
	return nil
}

func (m *mockRecordRepo) SetAttachment(_ context.Context, id uuid.UUID, a *Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return context.DeadlineExceeded
	}
	stored, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	f := *a
	stored.File = &f
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MedicalRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			out = append(out, m.view(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return []*MedicalRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRecordRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
