package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MedicalRecord maps to the medical_record table. Names are joined from the
// patient and the authoring doctor.
type MedicalRecord struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	DiseaseName string      `db:"disease_name" json:"disease_name"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`
	File        *Attachment `json:"file,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`

	PatientName   string    `json:"patient_name"`
	DoctorName    string    `json:"doctor_name"`
	PatientUserID uuid.UUID `json:"-"`
	DoctorUserID  uuid.UUID `json:"-"`
}

// Attachment is the file stored for a record. BlobID is the generated
// storage name and is never shown to clients.
type Attachment struct {
	BlobID      string `db:"file_id" json:"-"`
	FileName    string `db:"file_name" json:"file_name"`
	ContentType string `db:"file_content_type" json:"content_type"`
	Size        int64  `db:"file_size" json:"size"`
	Hash        string `db:"file_hash" json:"sha256"`
}

type CreateRequest struct {
	PatientID   string `json:"patient_id" validate:"required,uuid"`
	DiseaseName string `json:"disease_name" validate:"required,notblank,max=255"`
	Notes       string `json:"notes" validate:"omitempty,max=5000"`
}

type UpdateRequest struct {
	DiseaseName *string `json:"disease_name" validate:"omitempty,notblank,max=255"`
	Notes       *string `json:"notes" validate:"omitempty,max=5000"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
