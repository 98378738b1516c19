package clinical

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/blobstore"
	"github.com/curameet/curameet/internal/platform/validation"
)

// PatientAccess answers who may see a patient's data. It is implemented by
// identity.ProfileService.
type PatientAccess interface {
	PatientByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	GetPatient(ctx context.Context, caller auth.Identity, id uuid.UUID) (*identity.Patient, error)
	PatientForCaller(ctx context.Context, caller auth.Identity) (*identity.Patient, error)
	DoctorForCaller(ctx context.Context, caller auth.Identity) (*identity.Doctor, error)
	AuthorizePatientAccess(ctx context.Context, caller auth.Identity, patientID, patientUserID uuid.UUID) error
	AuthorizeTreatingDoctor(ctx context.Context, doctorID, patientID uuid.UUID) error
}

// Service manages medical records and their attachments.
type Service struct {
	records   RecordRepository
	access    PatientAccess
	blobs     blobstore.BlobStore
	validator *validation.Validator
	logger    zerolog.Logger
}

func NewService(records RecordRepository, access PatientAccess, blobs blobstore.BlobStore, v *validation.Validator, logger zerolog.Logger) *Service {
	return &Service{
		records:   records,
		access:    access,
		blobs:     blobs,
		validator: v,
		logger:    logger.With().Str("component", "clinical").Logger(),
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apierror.NotFound("Medical record")
	}
	if err != nil {
		return nil, apierror.Internal(fmt.Errorf("get medical record: %w", err))
	}
	return rec, nil
}

// authorizeRead admits the record's patient, its author, any doctor treating
// the patient and admins.
func (s *Service) authorizeRead(ctx context.Context, caller auth.Identity, rec *MedicalRecord) error {
	switch caller.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RolePatient:
		if caller.UserID == rec.PatientUserID {
			return nil
		}
	case auth.RoleDoctor:
		if caller.UserID == rec.DoctorUserID {
			return nil
		}
		return s.access.AuthorizePatientAccess(ctx, caller, rec.PatientID, rec.PatientUserID)
	}
	return apierror.Forbidden()
}

func authorizeAuthor(caller auth.Identity, rec *MedicalRecord) error {
	if caller.Role == auth.RoleDoctor && caller.UserID == rec.DoctorUserID {
		return nil
	}
	return apierror.Forbidden()
}

// -- Reads --

// ListForPatient lists a patient's records for the patient themself, a
// treating doctor or an admin.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Identity, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	p, err := s.access.GetPatient(ctx, caller, patientID)
	if err != nil {
		return nil, 0, err
	}
	return s.list(ctx, p.ID, limit, offset)
}

// ListOwn lists the calling patient's records.
func (s *Service) ListOwn(ctx context.Context, caller auth.Identity, limit, offset int) ([]*MedicalRecord, int, error) {
	p, err := s.access.PatientForCaller(ctx, caller)
	if err != nil {
		return nil, 0, err
	}
	return s.list(ctx, p.ID, limit, offset)
}

func (s *Service) list(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	items, total, err := s.records.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apierror.Internal(fmt.Errorf("list medical records: %w", err))
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, caller, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// -- Writes --

// Create adds a record written by the calling doctor for a patient they treat.
func (s *Service) Create(ctx context.Context, caller auth.Identity, req CreateRequest) (*MedicalRecord, error) {
	doctor, err := s.access.DoctorForCaller(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apierror.InvalidFields(map[string]string{"patient_id": "patient_id must be a valid id"})
	}
	if err := s.access.AuthorizeTreatingDoctor(ctx, doctor.ID, patientID); err != nil {
		return nil, err
	}
	p, err := s.access.PatientByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	rec := &MedicalRecord{
		PatientID:     p.ID,
		DoctorID:      doctor.ID,
		DiseaseName:   req.DiseaseName,
		Notes:         optional(req.Notes),
		PatientName:   p.Name,
		DoctorName:    doctor.Name,
		PatientUserID: p.UserID,
		DoctorUserID:  doctor.UserID,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, apierror.Internal(fmt.Errorf("create medical record: %w", err))
	}
	return rec, nil
}

// Update changes a record. Only its author may do so.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id uuid.UUID, req UpdateRequest) (*MedicalRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAuthor(caller, rec); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	if req.DiseaseName != nil {
		rec.DiseaseName = *req.DiseaseName
	}
	if req.Notes != nil {
		rec.Notes = optional(*req.Notes)
	}
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, apierror.Internal(fmt.Errorf("update medical record: %w", err))
	}
	return rec, nil
}

// Delete removes a record and its file. Allowed for the author and admins.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uuid.UUID) error {
	rec, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() {
		if err := authorizeAuthor(caller, rec); err != nil {
			return err
		}
	}
	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierror.NotFound("Medical record")
		}
		return apierror.Internal(fmt.Errorf("delete medical record: %w", err))
	}
	if rec.File != nil {
		s.removeBlob(ctx, rec.File.BlobID)
	}
	s.logger.Info().
		Str("record_id", id.String()).
		Str("deleted_by", caller.UserID.String()).
		Msg("medical record deleted")
	return nil
}

// removeBlob deletes a stored file; the record no longer points at it, so a
// failure only leaves an orphan behind.
func (s *Service) removeBlob(ctx context.Context, blobID string) {
	if err := s.blobs.Delete(ctx, blobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", blobID).Msg("failed to delete orphaned file")
	}
}

// -- Files --

// AttachFile stores content as the record's file, replacing any previous one.
func (s *Service) AttachFile(ctx context.Context, caller auth.Identity, id uuid.UUID, fileName string, content io.Reader) (*MedicalRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeAuthor(caller, rec); err != nil {
		return nil, err
	}

	meta, err := s.blobs.Upload(ctx, fileName, content)
	if err != nil {
		return nil, uploadError(err)
	}
	att := &Attachment{
		BlobID:      meta.ID,
		FileName:    meta.FileName,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Hash:        meta.Hash,
	}
	if err := s.records.SetAttachment(ctx, id, att); err != nil {
		s.removeBlob(ctx, meta.ID)
		return nil, apierror.Internal(fmt.Errorf("save attachment: %w", err))
	}

	if rec.File != nil {
		s.removeBlob(ctx, rec.File.BlobID)
	}
	rec.File = att
	return rec, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrEmptyFile):
		return apierror.InvalidFields(map[string]string{"file": "file is required"})
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apierror.InvalidFields(map[string]string{
			"file": fmt.Sprintf("file may not be greater than %d kilobytes", blobstore.MaxFileSize/1024),
		})
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apierror.InvalidFields(map[string]string{"file": "file must be a file of type: pdf, jpeg, png"})
	default:
		return apierror.Internal(fmt.Errorf("store attachment: %w", err))
	}
}

// DownloadFile opens the record's file for anyone who may read the record.
// The caller must close the returned reader.
func (s *Service) DownloadFile(ctx context.Context, caller auth.Identity, id uuid.UUID) (io.ReadCloser, *Attachment, error) {
	rec, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.File == nil {
		return nil, nil, apierror.NotFound("File")
	}
	rc, err := s.blobs.Download(ctx, rec.File.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apierror.NotFound("File")
	}
	if err != nil {
		return nil, nil, apierror.Internal(fmt.Errorf("open attachment: %w", err))
	}
	return rc, rec.File, nil
}
