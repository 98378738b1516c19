package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curameet/curameet/internal/platform/auth"
	"github.com/curameet/curameet/internal/platform/db"
)

// notFound maps pgx.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userColumns = `id, name, email, password_hash, role, phone, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, name, email, password_hash, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Phone,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err, "") {
		return ErrEmailTaken
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) UpdateProfile(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE app_user SET name = $2, email = $3, phone = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.Email, u.Phone,
	).Scan(&u.UpdatedAt)
	if db.IsUniqueViolation(err, "") {
		return ErrEmailTaken
	}
	return notFound(err)
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE app_user SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) UpdateRole(ctx context.Context, id uuid.UUID, role auth.Role) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE app_user SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(` AND (name ILIKE $%d OR email ILIKE $%d)`, idx, idx)
		args = append(args, "%"+escapeLike(f.Search)+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM app_user` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientSelect = `SELECT p.id, p.user_id, u.name, u.email, u.phone,
	p.gender, p.birth_date, p.address, p.blood_type, p.allergies, p.disease_history,
	p.created_at, p.updated_at
	FROM patient p JOIN app_user u ON u.id = p.user_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, gender, birth_date, address, blood_type, allergies, disease_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Gender, p.BirthDate, p.Address, p.BloodType, p.Allergies, p.DiseaseHistory,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.user_id = $1`, userID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			gender = $2, birth_date = $3, address = $4, blood_type = $5,
			allergies = $6, disease_history = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Gender, p.BirthDate, p.Address, p.BloodType, p.Allergies, p.DiseaseHistory,
	).Scan(&p.UpdatedAt)
	return notFound(err)
}

func (r *patientRepoPG) EnsureForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO patient (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID)
	return err
}

func (r *patientRepoPG) IsTreatedBy(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment
		               WHERE patient_id = $1 AND doctor_id = $2 AND status <> 'cancelled')
		    OR EXISTS (SELECT 1 FROM medical_record WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID,
	).Scan(&ok)
	return ok, err
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Email, &p.Phone,
		&p.Gender, &p.BirthDate, &p.Address, &p.BloodType, &p.Allergies, &p.DiseaseHistory,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorSelect = `SELECT d.id, d.user_id, u.name, u.email, u.phone,
	d.specialty, d.polyclinic, d.license_number, d.availability,
	d.created_at, d.updated_at
	FROM doctor d JOIN app_user u ON u.id = d.user_id`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, user_id, specialty, polyclinic, license_number, availability)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Specialty, d.Polyclinic, d.LicenseNumber, d.Availability,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
}

func (r *doctorRepoPG) LockByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1 FOR UPDATE OF d`, id))
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET
			specialty = $2, polyclinic = $3, license_number = $4, availability = $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.Specialty, d.Polyclinic, d.LicenseNumber, d.Availability,
	).Scan(&d.UpdatedAt)
	return notFound(err)
}

func (r *doctorRepoPG) EnsureForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO doctor (id, user_id) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID)
	return err
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	// Only users currently holding the doctor role are listed.
	where := ` WHERE u.role = 'doctor'`
	var args []interface{}
	idx := 1

	if f.Specialty != "" {
		where += fmt.Sprintf(` AND d.specialty ILIKE $%d`, idx)
		args = append(args, escapeLike(f.Specialty))
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(` AND (u.name ILIKE $%d OR d.polyclinic ILIKE $%d)`, idx, idx)
		args = append(args, "%"+escapeLike(f.Search)+"%")
		idx++
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor d JOIN app_user u ON u.id = d.user_id`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := doctorSelect + where + fmt.Sprintf(` ORDER BY u.name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.Email, &d.Phone,
		&d.Specialty, &d.Polyclinic, &d.LicenseNumber, &d.Availability,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// -- Session Repository --

type sessionRepoPG struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO auth_session (id, user_id, token_hash, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.UserAgent, s.IPAddress,
	).Scan(&s.CreatedAt)
}

func (r *sessionRepoPG) GetActiveByTokenHash(ctx context.Context, hash string, now time.Time) (*Session, error) {
	var s Session
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT s.id, s.user_id, s.token_hash, s.expires_at, s.revoked_at,
		       s.user_agent, s.ip_address, s.created_at, u.role
		FROM auth_session s JOIN app_user u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.revoked_at IS NULL AND s.expires_at > $2`,
		hash, now,
	).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.RevokedAt,
		&s.UserAgent, &s.IPAddress, &s.CreatedAt, &s.Role,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *sessionRepoPG) Revoke(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE auth_session SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, now)
	return err
}

func (r *sessionRepoPG) RevokeAllForUser(ctx context.Context, userID uuid.UUID, keep *uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE auth_session SET revoked_at = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND ($2::uuid IS NULL OR id <> $2)`,
		userID, keep, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *sessionRepoPG) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM auth_session WHERE expires_at < $1 OR revoked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// -- Password Reset Repository --

type resetRepoPG struct {
	pool *pgxpool.Pool
}

func NewPasswordResetRepo(pool *pgxpool.Pool) PasswordResetRepository {
	return &resetRepoPG{pool: pool}
}

func (r *resetRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *resetRepoPG) Create(ctx context.Context, pr *PasswordReset) error {
	pr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO password_reset (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		pr.ID, pr.UserID, pr.TokenHash, pr.ExpiresAt,
	).Scan(&pr.CreatedAt)
}

func (r *resetRepoPG) GetActive(ctx context.Context, userID uuid.UUID, hash string, now time.Time) (*PasswordReset, error) {
	var pr PasswordReset
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset
		WHERE user_id = $1 AND token_hash = $2 AND used_at IS NULL AND expires_at > $3`,
		userID, hash, now,
	).Scan(&pr.ID, &pr.UserID, &pr.TokenHash, &pr.ExpiresAt, &pr.UsedAt, &pr.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &pr, nil
}

func (r *resetRepoPG) MarkUsed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE password_reset SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *resetRepoPG) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM password_reset WHERE expires_at < $1 OR used_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
