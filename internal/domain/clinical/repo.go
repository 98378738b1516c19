package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("clinical: medical record not found")

type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	// Update persists disease_name and notes.
	Update(ctx context.Context, r *MedicalRecord) error
	// SetAttachment replaces the record's file metadata.
	SetAttachment(ctx context.Context, id uuid.UUID, att *Attachment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
}
