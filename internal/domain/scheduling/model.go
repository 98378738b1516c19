package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/auth"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes pending -> confirmed -> completed, with cancel
// allowed from any non-terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Appointment maps to the appointment table. The name and specialty fields
// are joined from the participants for display.
type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	TimeAppointment    time.Time  `db:"time_appointment" json:"time_appointment"`
	Status             Status     `db:"status" json:"status"`
	PatientNote        *string    `db:"patient_note" json:"patient_note,omitempty"`
	DoctorNote         *string    `db:"doctor_note" json:"doctor_note,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        *auth.Role `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	DoctorSpecialty string    `json:"doctor_specialty"`
	Polyclinic      *string   `json:"polyclinic,omitempty"`
	PatientUserID   uuid.UUID `json:"-"`
	DoctorUserID    uuid.UUID `json:"-"`
}

// Filter narrows appointment listings. Zero values are ignored.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    Status
	From      *time.Time
	To        *time.Time
}

// -- Requests --

type CreateRequest struct {
	DoctorID        string `json:"doctor_id" validate:"required,uuid"`
	TimeAppointment string `json:"time_appointment" validate:"required"`
	Note            string `json:"note" validate:"omitempty,max=1000"`
}

type ScheduleRequest struct {
	TimeAppointment string `json:"time_appointment" validate:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed completed"`
}

type NoteRequest struct {
	DoctorNote string `json:"doctor_note" validate:"required,notblank,max=2000"`
}

// slotLayouts are the accepted appointment time formats. Layouts without a
// zone are read as UTC.
var slotLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseSlotTime parses an appointment time and normalizes it to a UTC
// minute, so "09:00" and "09:00:30" address the same slot.
func ParseSlotTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
