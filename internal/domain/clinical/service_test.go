package clinical

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curameet/curameet/internal/domain/identity"
	"github.com/curameet/curameet/internal/platform/apierror"
	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/blobstore"
	"github.com/curameet/curameet/internal/platform/validation"
)

var (
	pdfContent = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	pngContent = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
)

type fixture struct {
	svc    *Service
	access *mockAccess
	repo   *mockRecordRepo
	blobs  *blobstore.InMemoryBlobStore
	p1     *identity.Patient
	p2     *identity.Patient
	d1     *identity.Doctor
	d2     *identity.Doctor
	admin  auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	access := newMockAccess()
	repo := newMockRecordRepo(access)
	blobs := blobstore.NewInMemoryBlobStore()
	f := &fixture{
		svc:    NewService(repo, access, blobs, validation.New(), zerolog.Nop()),
		access: access,
		repo:   repo,
		blobs:  blobs,
		p1:     access.addPatient("Pat One"),
		p2:     access.addPatient("Pat Two"),
		d1:     access.addDoctor("Dr. One"),
		d2:     access.addDoctor("Dr. Two"),
		admin:  auth.Identity{UserID: uuid.New(), Role: auth.RoleAdmin},
	}
	access.treat(f.p1.ID, f.d1.ID)
	return f
}

func patientCaller(p *identity.Patient) auth.Identity {
	return auth.Identity{UserID: p.UserID, Role: auth.RolePatient}
}

func doctorCaller(d *identity.Doctor) auth.Identity {
	return auth.Identity{UserID: d.UserID, Role: auth.RoleDoctor}
}

func requireKind(t *testing.T, err error, kind apierror.Kind) *apierror.Error {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok, "expected *apierror.Error, got %T: %v", err, err)
	require.Equal(t, kind, apiErr.Kind, "unexpected kind for %v", err)
	return apiErr
}

func (f *fixture) create(t *testing.T) *MedicalRecord {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), doctorCaller(f.d1), CreateRequest{
		PatientID:   f.p1.ID.String(),
		DiseaseName: "Hypertension",
		Notes:       "Monitor blood pressure weekly",
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) blobExists(id string) bool {
	rc, err := f.blobs.Download(context.Background(), id)
	if err != nil {
		return false
	}
	rc.Close()
	return true
}

// -- Create --

func TestCreate(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, f.p1.ID, rec.PatientID)
	assert.Equal(t, f.d1.ID, rec.DoctorID)
	assert.Equal(t, "Pat One", rec.PatientName)
	assert.Equal(t, "Dr. One", rec.DoctorName)
	require.NotNil(t, rec.Notes)
	assert.Nil(t, rec.File)
	assert.Equal(t, 1, f.repo.count())
}

func TestCreate_RequiresTreatingDoctor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), doctorCaller(f.d2), CreateRequest{
		PatientID:   f.p1.ID.String(),
		DiseaseName: "Flu",
	})
	requireKind(t, err, apierror.KindAuthorization)
	assert.Equal(t, 0, f.repo.count())
}

func TestCreate_DoctorsOnly(t *testing.T) {
	f := newFixture(t)
	req := CreateRequest{PatientID: f.p1.ID.String(), DiseaseName: "Flu"}

	_, err := f.svc.Create(context.Background(), patientCaller(f.p1), req)
	requireKind(t, err, apierror.KindAuthorization)
	_, err = f.svc.Create(context.Background(), f.admin, req)
	requireKind(t, err, apierror.KindAuthorization)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"missing patient", CreateRequest{DiseaseName: "Flu"}, "patient_id"},
		{"bad patient id", CreateRequest{PatientID: "nope", DiseaseName: "Flu"}, "patient_id"},
		{"blank disease", CreateRequest{PatientID: f.p1.ID.String(), DiseaseName: "   "}, "disease_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), doctorCaller(f.d1), tt.req)
			apiErr := requireKind(t, err, apierror.KindValidation)
			assert.Contains(t, apiErr.Fields, tt.field)
		})
	}
}

func TestCreate_UnknownPatientIsForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), doctorCaller(f.d1), CreateRequest{
		PatientID:   uuid.NewString(),
		DiseaseName: "Flu",
	})
	requireKind(t, err, apierror.KindAuthorization)
}

// -- Reads --

func TestGet_Access(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	stranger := f.access.addDoctor("Dr. Stranger")
	treating := f.access.addDoctor("Dr. Consult")
	f.access.treat(f.p1.ID, treating.ID)

	tests := []struct {
		name   string
		caller auth.Identity
		kind   apierror.Kind
	}{
		{"owner patient", patientCaller(f.p1), 0},
		{"author", doctorCaller(f.d1), 0},
		{"treating doctor", doctorCaller(treating), 0},
		{"admin", f.admin, 0},
		{"other patient", patientCaller(f.p2), apierror.KindAuthorization},
		{"unrelated doctor", doctorCaller(stranger), apierror.KindAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Get(context.Background(), tt.caller, rec.ID)
			if tt.kind == 0 {
				require.NoError(t, err)
				assert.Equal(t, rec.ID, got.ID)
				return
			}
			requireKind(t, err, tt.kind)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), f.admin, uuid.New())
	apiErr := requireKind(t, err, apierror.KindNotFound)
	assert.Equal(t, "Medical record not found", apiErr.Message)
}

func TestListOwn(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	f.create(t)

	items, total, err := f.svc.ListOwn(context.Background(), patientCaller(f.p1), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = f.svc.ListOwn(context.Background(), patientCaller(f.p2), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, items)

	_, _, err = f.svc.ListOwn(context.Background(), doctorCaller(f.d1), 20, 0)
	requireKind(t, err, apierror.KindAuthorization)
}

func TestListForPatient(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	_, total, err := f.svc.ListForPatient(context.Background(), doctorCaller(f.d1), f.p1.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = f.svc.ListForPatient(context.Background(), f.admin, f.p1.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = f.svc.ListForPatient(context.Background(), doctorCaller(f.d2), f.p1.ID, 20, 0)
	requireKind(t, err, apierror.KindAuthorization)

	_, _, err = f.svc.ListForPatient(context.Background(), f.admin, uuid.New(), 20, 0)
	requireKind(t, err, apierror.KindNotFound)
}

func TestListForPatient_UnknownAndForeignLookAlike(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	for name, caller := range map[string]auth.Identity{
		"unrelated doctor": doctorCaller(f.d2),
		"other patient":    patientCaller(f.p2),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, errKnown := f.svc.ListForPatient(context.Background(), caller, f.p1.ID, 20, 0)
			_, _, errUnknown := f.svc.ListForPatient(context.Background(), caller, uuid.New(), 20, 0)
			known := requireKind(t, errKnown, apierror.KindAuthorization)
			unknown := requireKind(t, errUnknown, apierror.KindAuthorization)
			assert.Equal(t, known.Message, unknown.Message)
		})
	}
}

// -- Update / Delete --

func TestUpdate_AuthorOnly(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	name := "Stage 2 hypertension"
	notes := ""

	_, err := f.svc.Update(context.Background(), f.admin, rec.ID, UpdateRequest{DiseaseName: &name})
	requireKind(t, err, apierror.KindAuthorization)

	f.access.treat(f.p1.ID, f.d2.ID)
	_, err = f.svc.Update(context.Background(), doctorCaller(f.d2), rec.ID, UpdateRequest{DiseaseName: &name})
	requireKind(t, err, apierror.KindAuthorization)

	updated, err := f.svc.Update(context.Background(), doctorCaller(f.d1), rec.ID, UpdateRequest{DiseaseName: &name, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, name, updated.DiseaseName)
	assert.Nil(t, updated.Notes)

	stored, err := f.svc.Get(context.Background(), f.admin, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, name, stored.DiseaseName)
}

func TestUpdate_RejectsBlankDisease(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	blank := " "
	_, err := f.svc.Update(context.Background(), doctorCaller(f.d1), rec.ID, UpdateRequest{DiseaseName: &blank})
	apiErr := requireKind(t, err, apierror.KindValidation)
	assert.Contains(t, apiErr.Fields, "disease_name")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	withFile, err := f.svc.AttachFile(context.Background(), doctorCaller(f.d1), rec.ID, "scan.pdf", bytes.NewReader(pdfContent))
	require.NoError(t, err)
	blobID := withFile.File.BlobID

	err = f.svc.Delete(context.Background(), patientCaller(f.p1), rec.ID)
	requireKind(t, err, apierror.KindAuthorization)
	err = f.svc.Delete(context.Background(), doctorCaller(f.d2), rec.ID)
	requireKind(t, err, apierror.KindAuthorization)
	assert.Equal(t, 1, f.repo.count())

	require.NoError(t, f.svc.Delete(context.Background(), doctorCaller(f.d1), rec.ID))
	assert.Equal(t, 0, f.repo.count())
	assert.False(t, f.blobExists(blobID))

	err = f.svc.Delete(context.Background(), doctorCaller(f.d1), rec.ID)
	requireKind(t, err, apierror.KindNotFound)
}

func TestDelete_Admin(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	require.NoError(t, f.svc.Delete(context.Background(), f.admin, rec.ID))
	assert.Equal(t, 0, f.repo.count())
}

// -- Files --

func TestAttachFile(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	got, err := f.svc.AttachFile(context.Background(), doctorCaller(f.d1), rec.ID, "../../lab result.pdf", bytes.NewReader(pdfContent))
	require.NoError(t, err)
	require.NotNil(t, got.File)
	assert.Equal(t, "application/pdf", got.File.ContentType)
	assert.Equal(t, int64(len(pdfContent)), got.File.Size)
	assert.Len(t, got.File.Hash, 64)
	assert.NotContains(t, got.File.FileName, "/")

	rc, att, err := f.svc.DownloadFile(context.Background(), patientCaller(f.p1), rec.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, pdfContent, data)
	assert.Equal(t, got.File.BlobID, att.BlobID)
}

func TestAttachFile_ReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	caller := doctorCaller(f.d1)

	first, err := f.svc.AttachFile(context.Background(), caller, rec.ID, "scan.pdf", bytes.NewReader(pdfContent))
	require.NoError(t, err)
	oldID := first.File.BlobID

	second, err := f.svc.AttachFile(context.Background(), caller, rec.ID, "xray.png", bytes.NewReader(pngContent))
	require.NoError(t, err)
	assert.Equal(t, "image/png", second.File.ContentType)
	assert.False(t, f.blobExists(oldID))
	assert.True(t, f.blobExists(second.File.BlobID))
}

func TestAttachFile_Rejections(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	tests := []struct {
		name    string
		content []byte
		message string
	}{
		{"empty", nil, "file is required"},
		{"wrong type", []byte("just some plain text notes"), "file must be a file of type: pdf, jpeg, png"},
		{"too large", append(append([]byte{}, pdfContent...), make([]byte, blobstore.MaxFileSize)...), "file may not be greater than 5120 kilobytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AttachFile(context.Background(), doctorCaller(f.d1), rec.ID, "upload", bytes.NewReader(tt.content))
			apiErr := requireKind(t, err, apierror.KindValidation)
			assert.Equal(t, tt.message, apiErr.Fields["file"])

			stored, err := f.svc.Get(context.Background(), f.admin, rec.ID)
			require.NoError(t, err)
			assert.Nil(t, stored.File)
		})
	}
}

func TestAttachFile_AuthorOnly(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	_, err := f.svc.AttachFile(context.Background(), patientCaller(f.p1), rec.ID, "scan.pdf", bytes.NewReader(pdfContent))
	requireKind(t, err, apierror.KindAuthorization)
}

func TestAttachFile_SaveFailure(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)
	f.repo.failSet = true

	_, err := f.svc.AttachFile(context.Background(), doctorCaller(f.d1), rec.ID, "scan.pdf", bytes.NewReader(pdfContent))
	apiErr := requireKind(t, err, apierror.KindInternal)
	assert.True(t, errors.Is(apiErr, context.DeadlineExceeded))
}

func TestDownloadFile(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	_, _, err := f.svc.DownloadFile(context.Background(), patientCaller(f.p1), rec.ID)
	apiErr := requireKind(t, err, apierror.KindNotFound)
	assert.Equal(t, "File not found", apiErr.Message)

	_, err = f.svc.AttachFile(context.Background(), doctorCaller(f.d1), rec.ID, "scan.pdf", bytes.NewReader(pdfContent))
	require.NoError(t, err)

	_, _, err = f.svc.DownloadFile(context.Background(), patientCaller(f.p2), rec.ID)
	requireKind(t, err, apierror.KindAuthorization)
}
