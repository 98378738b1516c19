package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/db"
	"github.com/curameet/curameet/internal/platform/validation"
)

// PatientLookup resolves a user to their patient profile.
type PatientLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.Patient, error)
}

// DoctorLookup resolves doctors. LockByID must hold the doctor row until the
// surrounding transaction ends.
type DoctorLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*identity.Doctor, error)
	LockByID(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// Service is the appointment book.
type Service struct {
	appointments AppointmentRepository
	patients     PatientLookup
	doctors      DoctorLookup
	tx           db.Transactor
	validator    *validation.Validator
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	appointments AppointmentRepository,
	patients PatientLookup,
	doctors DoctorLookup,
	tx db.Transactor,
	v *validation.Validator,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		patients:     patients,
		doctors:      doctors,
		tx:           tx,
		validator:    v,
		logger:       logger.With().Str("component", "scheduling").Logger(),
		now:          time.Now,
	}
}

func slotTaken() *apierror.Error {
	return apierror.Conflict(apierror.MsgSlotTaken)
}

// futureSlot parses raw and requires it to be after now.
func (s *Service) futureSlot(raw string) (time.Time, error) {
	at, err := ParseSlotTime(raw)
	if err != nil {
		return time.Time{}, apierror.InvalidFields(map[string]string{
			"time_appointment": "time_appointment must be a valid date and time",
		})
	}
	if !at.After(s.now()) {
		return time.Time{}, apierror.InvalidFields(map[string]string{
			"time_appointment": "time_appointment must be a date after now",
		})
	}
	return at, nil
}

// -- Booking --

// Book creates a pending appointment for the calling patient. The doctor row
// is locked across the slot check and the insert.
func (s *Service) Book(ctx context.Context, caller auth.Identity, req CreateRequest) (*Appointment, error) {
	if caller.Role != auth.RolePatient {
		return nil, apierror.Forbidden()
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, apierror.InvalidFields(map[string]string{"doctor_id": "doctor_id must be a valid id"})
	}
	at, err := s.futureSlot(req.TimeAppointment)
	if err != nil {
		return nil, err
	}

	patient, err := s.patients.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, apierror.NotFound("Patient profile")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("lookup patient: %w", err))
	}

	a := &Appointment{
		PatientID:       patient.ID,
		DoctorID:        doctorID,
		TimeAppointment: at,
		Status:          StatusPending,
		PatientNote:     optional(req.Note),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.doctors.LockByID(ctx, doctorID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return apierror.NotFound("Doctor")
			}
			return apierror.Internal(fmt.Errorf("lock doctor: %w", err))
		}
		taken, err := s.appointments.SlotTaken(ctx, doctorID, at, nil)
		if err != nil {
			return apierror.Internal(fmt.Errorf("check slot: %w", err))
		}
		if taken {
			return slotTaken()
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return slotTaken()
			}
			return apierror.Internal(fmt.Errorf("create appointment: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("time_appointment", at).
		Msg("appointment booked")
	return s.reload(ctx, a)
}

// reload fetches a with its display fields; on failure a is returned as is.
func (s *Service) reload(ctx context.Context, a *Appointment) (*Appointment, error) {
	full, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("reload appointment")
		return a, nil
	}
	return full, nil
}

// -- Ownership --

// isOwner reports whether caller is the appointment's patient or doctor.
func isOwner(caller auth.Identity, a *Appointment) bool {
	switch caller.Role {
	case auth.RolePatient:
		return caller.UserID == a.PatientUserID
	case auth.RoleDoctor:
		return caller.UserID == a.DoctorUserID
	}
	return false
}

// authorize admits owners and admins.
func authorize(caller auth.Identity, a *Appointment) error {
	if caller.IsAdmin() || isOwner(caller, a) {
		return nil
	}
	return apierror.Forbidden()
}

// authorizeDoctor admits only the appointment's doctor.
func authorizeDoctor(caller auth.Identity, a *Appointment) error {
	if caller.Role == auth.RoleDoctor && caller.UserID == a.DoctorUserID {
		return nil
	}
	return apierror.Forbidden()
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Appointment")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("get appointment: %w", err))
	}
	return a, nil
}

func (s *Service) lock(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.LockByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Appointment")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("lock appointment: %w", err))
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, a); err != nil {
		return nil, err
	}
	return a, nil
}

// -- Mutations --

// Cancel cancels an appointment on behalf of its patient, its doctor or an
// admin and records who did it.
func (s *Service) Cancel(ctx context.Context, caller auth.Identity, id uuid.UUID, req CancelRequest) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, a); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if a, err = s.lock(ctx, id); err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(StatusCancelled) {
			return apierror.Validation("Appointment is already %s", a.Status)
		}
		role := caller.Role
		a.Status = StatusCancelled
		a.CancelledBy = &role
		a.CancellationReason = optional(req.Reason)
		if err := s.appointments.UpdateStatus(ctx, a); err != nil {
			return apierror.Internal(fmt.Errorf("cancel appointment: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("cancelled_by", caller.Role.String()).
		Msg("appointment cancelled")
	return a, nil
}

// Reschedule moves an open appointment to a new slot. A confirmed
// appointment goes back to pending.
func (s *Service) Reschedule(ctx context.Context, caller auth.Identity, id uuid.UUID, req ScheduleRequest) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, a); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	at, err := s.futureSlot(req.TimeAppointment)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if a, err = s.lock(ctx, id); err != nil {
			return err
		}
		if a.Status.Terminal() {
			return apierror.Validation("Appointment is already %s", a.Status)
		}
		if _, err := s.doctors.LockByID(ctx, a.DoctorID); err != nil {
			return apierror.Internal(fmt.Errorf("lock doctor: %w", err))
		}
		taken, err := s.appointments.SlotTaken(ctx, a.DoctorID, at, &a.ID)
		if err != nil {
			return apierror.Internal(fmt.Errorf("check slot: %w", err))
		}
		if taken {
			return slotTaken()
		}
		if err := s.appointments.Reschedule(ctx, a.ID, at, StatusPending); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return slotTaken()
			}
			return apierror.Internal(fmt.Errorf("reschedule appointment: %w", err))
		}
		a.TimeAppointment = at
		a.Status = StatusPending
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}
	return s.reload(ctx, a)
}

// UpdateStatus lets the appointment's doctor confirm or complete it.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Identity, id uuid.UUID, req StatusRequest) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDoctor(caller, a); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	next, err := ParseStatus(req.Status)
	if err != nil {
		return nil, apierror.InvalidFields(map[string]string{"status": "status must be one of: confirmed, completed"})
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if a, err = s.lock(ctx, id); err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(next) {
			return apierror.Validation("Cannot change status from %s to %s", a.Status, next)
		}
		a.Status = next
		if err := s.appointments.UpdateStatus(ctx, a); err != nil {
			return apierror.Internal(fmt.Errorf("update status: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, apierror.Wrap(err)
	}
	return a, nil
}

// AddDoctorNote sets the doctor's note on one of their appointments.
func (s *Service) AddDoctorNote(ctx context.Context, caller auth.Identity, id uuid.UUID, req NoteRequest) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDoctor(caller, a); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateDoctorNote(ctx, id, req.DoctorNote); err != nil {
		return nil, apierror.Internal(fmt.Errorf("update doctor note: %w", err))
	}
	note := req.DoctorNote
	a.DoctorNote = &note
	return a, nil
}

// -- Listings --

// List returns appointments visible to caller. Patients and doctors only see
// their own; asking for another party's appointments is unauthorized. Admins
// see everything f selects.
func (s *Service) List(ctx context.Context, caller auth.Identity, f Filter, limit, offset int) ([]*Appointment, int, error) {
	switch caller.Role {
	case auth.RoleAdmin:
	case auth.RolePatient:
		patient, err := s.patients.GetByUserID(ctx, caller.UserID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil, 0, apierror.NotFound("Patient profile")
		}
		if err != nil {
			return nil, 0, apierror.Internal(err)
		}
		if f.PatientID != nil && *f.PatientID != patient.ID {
			return nil, 0, apierror.Forbidden()
		}
		f.PatientID = &patient.ID
	case auth.RoleDoctor:
		doctor, err := s.doctors.GetByUserID(ctx, caller.UserID)
		if errors.Is(err, identity.ErrNotFound) {
			return nil, 0, apierror.NotFound("Doctor profile")
		}
		if err != nil {
			return nil, 0, apierror.Internal(err)
		}
		if f.DoctorID != nil && *f.DoctorID != doctor.ID {
			return nil, 0, apierror.Forbidden()
		}
		f.DoctorID = &doctor.ID
	default:
		return nil, 0, apierror.Forbidden()
	}

	items, total, err := s.appointments.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apierror.Internal(fmt.Errorf("list appointments: %w", err))
	}
	return items, total, nil
}
