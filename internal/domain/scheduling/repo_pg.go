package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curameet/curameet/internal/platform/db"
)

// slotIndex is the partial unique index on (doctor_id, time_appointment)
// for non-cancelled rows.
const slotIndex = "appointment_doctor_slot_key"

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.time_appointment, a.status,
		a.patient_note, a.doctor_note, a.cancellation_reason, a.cancelled_by,
		a.created_at, a.updated_at,
		pu.id, pu.name, du.id, du.name, d.specialty, d.polyclinic
	FROM appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN app_user pu ON pu.id = p.user_id
	JOIN doctor d ON d.id = a.doctor_id
	JOIN app_user du ON du.id = d.user_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.TimeAppointment, &a.Status,
		&a.PatientNote, &a.DoctorNote, &a.CancellationReason, &a.CancelledBy,
		&a.CreatedAt, &a.UpdatedAt,
		&a.PatientUserID, &a.PatientName, &a.DoctorUserID, &a.DoctorName, &a.DoctorSpecialty, &a.Polyclinic,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, time_appointment, status, patient_note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.TimeAppointment, a.Status, a.PatientNote,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, slotIndex) {
		return ErrSlotTaken
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND time_appointment = $2 AND status <> 'cancelled'
				AND ($3::uuid IS NULL OR id <> $3)
		)`, doctorID, at, exclude).Scan(&taken)
	return taken, err
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, id uuid.UUID, at time.Time, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET time_appointment = $2, status = $3, updated_at = NOW()
		WHERE id = $1`, id, at, status)
	if db.IsUniqueViolation(err, slotIndex) {
		return ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status = $2, cancellation_reason = $3, cancelled_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Status, a.CancellationReason, a.CancelledBy,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *appointmentRepoPG) UpdateDoctorNote(ctx context.Context, id uuid.UUID, note string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET doctor_note = $2, updated_at = NOW() WHERE id = $1`, id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND a.time_appointment >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND a.time_appointment < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := appointmentSelect + where +
		fmt.Sprintf(` ORDER BY a.time_appointment DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
