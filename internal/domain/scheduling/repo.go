package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("scheduling: appointment not found")
	// ErrSlotTaken is returned when a non-cancelled appointment already holds
	// the doctor's slot.
	ErrSlotTaken = errors.New("scheduling: slot taken")
)

type AppointmentRepository interface {
	// Create inserts a. A concurrent booking of the same slot yields ErrSlotTaken.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockByID returns the appointment and holds a row lock until the
	// surrounding transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// SlotTaken reports whether a non-cancelled appointment other than
	// exclude holds doctorID at at.
	SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error)
	// Reschedule moves the appointment to at and sets status.
	Reschedule(ctx context.Context, id uuid.UUID, at time.Time, status Status) error
	// UpdateStatus persists status, cancellation_reason and cancelled_by.
	UpdateStatus(ctx context.Context, a *Appointment) error
	UpdateDoctorNote(ctx context.Context, id uuid.UUID, note string) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
}
