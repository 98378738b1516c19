package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curameet/curameet/internal/platform/db"
)

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const recordSelect = `
	SELECT m.id, m.patient_id, m.doctor_id, m.disease_name, m.notes,
		m.file_id, m.file_name, m.file_content_type, m.file_size, m.file_hash,
		m.created_at, m.updated_at,
		pu.id, pu.name, du.id, du.name
	FROM medical_record m
	JOIN patient p ON p.id = m.patient_id
	JOIN app_user pu ON pu.id = p.user_id
	JOIN doctor d ON d.id = m.doctor_id
	JOIN app_user du ON du.id = d.user_id`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var (
		m                          MedicalRecord
		fileID, fileName, fileType *string
		fileSize                   *int64
		fileHash                   *string
	)
	err := row.Scan(
		&m.ID, &m.PatientID, &m.DoctorID, &m.DiseaseName, &m.Notes,
		&fileID, &fileName, &fileType, &fileSize, &fileHash,
		&m.CreatedAt, &m.UpdatedAt,
		&m.PatientUserID, &m.PatientName, &m.DoctorUserID, &m.DoctorName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if fileID != nil {
		m.File = &Attachment{BlobID: *fileID}
		if fileName != nil {
			m.File.FileName = *fileName
		}
		if fileType != nil {
			m.File.ContentType = *fileType
		}
		if fileSize != nil {
			m.File.Size = *fileSize
		}
		if fileHash != nil {
			m.File.Hash = *fileHash
		}
	}
	return &m, nil
}

func (r *recordRepoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_record (id, patient_id, doctor_id, disease_name, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.PatientID, m.DoctorID, m.DiseaseName, m.Notes,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, recordSelect+` WHERE m.id = $1`, id))
}

func (r *recordRepoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_record SET disease_name = $2, notes = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.DiseaseName, m.Notes,
	).Scan(&m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *recordRepoPG) SetAttachment(ctx context.Context, id uuid.UUID, att *Attachment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_record SET
			file_id = $2, file_name = $3, file_content_type = $4, file_size = $5, file_hash = $6,
			updated_at = NOW()
		WHERE id = $1`,
		id, att.BlobID, att.FileName, att.ContentType, att.Size, att.Hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_record WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_record WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		recordSelect+` WHERE m.patient_id = $1 ORDER BY m.created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
