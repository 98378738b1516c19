package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/validation"
)

// ProfileService serves patient and doctor profiles and answers the
// "may this caller see this patient" question for the other domains.
type ProfileService struct {
	patients  PatientRepository
	doctors   DoctorRepository
	validator *validation.Validator
}

func NewProfileService(patients PatientRepository, doctors DoctorRepository, v *validation.Validator) *ProfileService {
	return &ProfileService{patients: patients, doctors: doctors, validator: v}
}

// PatientForCaller returns the patient profile owned by caller.
func (s *ProfileService) PatientForCaller(ctx context.Context, caller auth.Identity) (*Patient, error) {
	if caller.Role != auth.RolePatient {
		return nil, apierror.Forbidden()
	}
	p, err := s.patients.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Patient profile")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("get patient profile: %w", err))
	}
	return p, nil
}

// DoctorForCaller returns the doctor profile owned by caller.
func (s *ProfileService) DoctorForCaller(ctx context.Context, caller auth.Identity) (*Doctor, error) {
	if caller.Role != auth.RoleDoctor {
		return nil, apierror.Forbidden()
	}
	d, err := s.doctors.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Doctor profile")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("get doctor profile: %w", err))
	}
	return d, nil
}

func (s *ProfileService) UpdatePatientProfile(ctx context.Context, caller auth.Identity, req PatientProfileRequest) (*Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	p, err := s.PatientForCaller(ctx, caller)
	if err != nil {
		return nil, err
	}

	if req.Gender != nil {
		p.Gender = optional(*req.Gender)
	}
	if req.BirthDate != nil {
		if p.BirthDate, err = parseDate(*req.BirthDate); err != nil {
			return nil, apierror.InvalidFields(map[string]string{"birth_date": "birth_date must be a date in the format 2006-01-02"})
		}
	}
	if req.Address != nil {
		p.Address = optional(*req.Address)
	}
	if req.BloodType != nil {
		p.BloodType = optional(*req.BloodType)
	}
	if req.Allergies != nil {
		p.Allergies = optional(*req.Allergies)
	}
	if req.DiseaseHistory != nil {
		p.DiseaseHistory = optional(*req.DiseaseHistory)
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, apierror.Internal(fmt.Errorf("update patient profile: %w", err))
	}
	return p, nil
}

func (s *ProfileService) UpdateDoctorProfile(ctx context.Context, caller auth.Identity, req DoctorProfileRequest) (*Doctor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	d, err := s.DoctorForCaller(ctx, caller)
	if err != nil {
		return nil, err
	}

	if req.Specialty != nil {
		d.Specialty = *req.Specialty
	}
	if req.Polyclinic != nil {
		d.Polyclinic = optional(*req.Polyclinic)
	}
	if req.LicenseNumber != nil {
		d.LicenseNumber = optional(*req.LicenseNumber)
	}
	if req.Availability != nil {
		d.Availability = optional(*req.Availability)
	}

	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, apierror.Internal(fmt.Errorf("update doctor profile: %w", err))
	}
	return d, nil
}

// ListDoctors is the doctor directory shown to patients when booking.
func (s *ProfileService) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	doctors, total, err := s.doctors.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apierror.Internal(fmt.Errorf("list doctors: %w", err))
	}
	return doctors, total, nil
}

// GetPatient returns a patient profile to the patient themself, a treating
// doctor or an admin. The caller is authorized before the lookup, so only
// admins can tell an unknown id from one they may not read.
func (s *ProfileService) GetPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID) (*Patient, error) {
	switch caller.Role {
	case auth.RoleAdmin:
		return s.PatientByID(ctx, patientID)
	case auth.RolePatient:
		own, err := s.PatientForCaller(ctx, caller)
		if err != nil {
			return nil, err
		}
		if own.ID != patientID {
			return nil, apierror.Forbidden()
		}
		return own, nil
	case auth.RoleDoctor:
		d, err := s.DoctorForCaller(ctx, caller)
		if err != nil {
			return nil, err
		}
		if err := s.AuthorizeTreatingDoctor(ctx, d.ID, patientID); err != nil {
			return nil, err
		}
		return s.PatientByID(ctx, patientID)
	default:
		return nil, apierror.Forbidden()
	}
}

// AuthorizePatientAccess returns nil when caller may read data of the
// patient identified by patientID (owned by patientUserID).
func (s *ProfileService) AuthorizePatientAccess(ctx context.Context, caller auth.Identity, patientID, patientUserID uuid.UUID) error {
	switch caller.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RolePatient:
		if caller.UserID == patientUserID {
			return nil
		}
		return apierror.Forbidden()
	case auth.RoleDoctor:
		d, err := s.DoctorForCaller(ctx, caller)
		if err != nil {
			return err
		}
		return s.AuthorizeTreatingDoctor(ctx, d.ID, patientID)
	default:
		return apierror.Forbidden()
	}
}

// AuthorizeTreatingDoctor returns nil when doctorID has an appointment or a
// medical record with patientID.
func (s *ProfileService) AuthorizeTreatingDoctor(ctx context.Context, doctorID, patientID uuid.UUID) error {
	ok, err := s.patients.IsTreatedBy(ctx, patientID, doctorID)
	if err != nil {
		return apierror.Internal(fmt.Errorf("check treating doctor: %w", err))
	}
	if !ok {
		return apierror.Forbidden()
	}
	return nil
}

// PatientByID looks a patient up without an access check.
func (s *ProfileService) PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Patient")
	}
	if err != nil {
		return nil, apierror.Internal(err)
	}
	return p, nil
}
