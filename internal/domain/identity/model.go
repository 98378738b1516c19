package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curameet/curameet/internal/platform/auth"
)

// User maps to the app_user table.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         auth.Role `db:"role" json:"role"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table. Name and Email come from the owning user.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	BirthDate      *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Address        *string    `db:"address" json:"address,omitempty"`
	BloodType      *string    `db:"blood_type" json:"blood_type,omitempty"`
	Allergies      *string    `db:"allergies" json:"allergies,omitempty"`
	DiseaseHistory *string    `db:"disease_history" json:"disease_history,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table. Name and Email come from the owning user.
type Doctor struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	Specialty     string    `db:"specialty" json:"specialty"`
	Polyclinic    *string   `db:"polyclinic" json:"polyclinic,omitempty"`
	LicenseNumber *string   `db:"license_number" json:"license_number,omitempty"`
	Availability  *string   `db:"availability" json:"availability,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Session maps to the auth_session table. Role is the owning user's current
// role, filled by lookups that join app_user.
type Session struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	UserAgent string     `db:"user_agent"`
	IPAddress string     `db:"ip_address"`
	CreatedAt time.Time  `db:"created_at"`
	Role      auth.Role
}

// PasswordReset maps to the password_reset table.
type PasswordReset struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Account is the caller's user together with the profile of their role.
type Account struct {
	User    *User    `json:"user"`
	Patient *Patient `json:"patient,omitempty"`
	Doctor  *Doctor  `json:"doctor,omitempty"`
}

// ClientMeta describes the client a session is issued to.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// -- Requests --

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,maxbytes=72"`
	Role     string `json:"role" validate:"omitempty,oneof=patient doctor admin"`
}

type RegisterRequest struct {
	Name                 string `json:"name" validate:"required,notblank,max=100"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8,maxbytes=72,hasupper,haslower,hasdigit"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	Role                 string `json:"role" validate:"required,oneof=patient doctor"`
	Phone                string `json:"phone" validate:"omitempty,max=30"`

	// Patient fields.
	Gender    string `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address   string `json:"address" validate:"omitempty,max=500"`

	// Doctor fields.
	Specialty     string `json:"specialty" validate:"required_if=Role doctor,max=100"`
	Polyclinic    string `json:"polyclinic" validate:"omitempty,max=100"`
	LicenseNumber string `json:"license_number" validate:"omitempty,max=50"`
}

type CreateAdminRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,maxbytes=72,hasupper,haslower,hasdigit"`
}

type ChangePasswordRequest struct {
	CurrentPassword         string `json:"current_password" validate:"required,maxbytes=72"`
	NewPassword             string `json:"new_password" validate:"required,min=8,maxbytes=72,hasupper,haslower,hasdigit"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

// UpdateProfileRequest has no role field; the generic profile path cannot
// change a role.
type UpdateProfileRequest struct {
	Name            string `json:"name" validate:"required,notblank,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Phone           string `json:"phone" validate:"omitempty,max=30"`
	CurrentPassword string `json:"current_password" validate:"required,maxbytes=72"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type ResetPasswordRequest struct {
	Email                string `json:"email" validate:"required,email,max=255"`
	Token                string `json:"token" validate:"required,hexadecimal,len=64"`
	Password             string `json:"password" validate:"required,min=8,maxbytes=72,hasupper,haslower,hasdigit"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type PatientProfileRequest struct {
	Gender         *string `json:"gender" validate:"omitempty,oneof=male female other"`
	BirthDate      *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Address        *string `json:"address" validate:"omitempty,max=500"`
	BloodType      *string `json:"blood_type" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies      *string `json:"allergies" validate:"omitempty,max=2000"`
	DiseaseHistory *string `json:"disease_history" validate:"omitempty,max=5000"`
}

type DoctorProfileRequest struct {
	Specialty     *string `json:"specialty" validate:"omitempty,notblank,max=100"`
	Polyclinic    *string `json:"polyclinic" validate:"omitempty,max=100"`
	LicenseNumber *string `json:"license_number" validate:"omitempty,max=50"`
	Availability  *string `json:"availability" validate:"omitempty,max=255"`
}

// -- Responses --

type LoginResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NormalizeEmail lower-cases and trims an address; e-mails are unique
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func parseDate(s string) (*time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
