package careprofessional

import (
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/pkg/civil"
)

type CareProfessional struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	TenantID           uuid.UUID `db:"tenant_id" json:"tenant_id"`
	FirstName          string    `db:"first_name" json:"first_name"`
	LastName           string    `db:"last_name" json:"last_name"`
	Role               string    `db:"role" json:"role"`
	Email              *string   `db:"email" json:"email,omitempty"`
	Phone              *string   `db:"phone" json:"phone,omitempty"`
	RegistrationNumber *string   `db:"registration_number" json:"registration_number,omitempty"`
	Specialty          *string   `db:"specialty" json:"specialty,omitempty"`
	Active             bool      `db:"active" json:"active"`
	CreatedBy          *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy          *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type Input struct {
	FirstName          string  `json:"first_name" validate:"required,max=100"`
	LastName           string  `json:"last_name" validate:"required,max=100"`
	Role               string  `json:"role" validate:"required,oneof=doctor nurse carer therapist pharmacist other"`
	Email              *string `json:"email" validate:"omitempty,email,max=320"`
	Phone              *string `json:"phone" validate:"omitempty,max=40"`
	RegistrationNumber *string `json:"registration_number" validate:"omitempty,max=50"`
	Specialty          *string `json:"specialty" validate:"omitempty,max=100"`
	Active             *bool   `json:"active"`
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (in *Input) apply(p *CareProfessional) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Role = in.Role
	p.Email = blankToNil(in.Email)
	p.Phone = blankToNil(in.Phone)
	p.RegistrationNumber = blankToNil(in.RegistrationNumber)
	p.Specialty = blankToNil(in.Specialty)
	if in.Active != nil {
		p.Active = *in.Active
	}
}

type ListFilter struct {
	Query  string
	Role   string
	Active *bool
}

// Assignment links a professional to a patient they care for.
type Assignment struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	TenantID           uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	CareProfessionalID uuid.UUID   `db:"care_professional_id" json:"care_professional_id"`
	PatientID          uuid.UUID   `db:"patient_id" json:"patient_id"`
	Role               string      `db:"role" json:"role"`
	StartDate          civil.Date  `db:"start_date" json:"start_date"`
	EndDate            *civil.Date `db:"end_date" json:"end_date,omitempty"`
	Notes              *string     `db:"notes" json:"notes,omitempty"`
	CreatedBy          *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

type AssignmentInput struct {
	PatientID uuid.UUID   `json:"patient_id" validate:"required"`
	Role      string      `json:"role" validate:"omitempty,oneof=primary secondary consultant"`
	StartDate *civil.Date `json:"start_date"`
	EndDate   *civil.Date `json:"end_date"`
	Notes     *string     `json:"notes" validate:"omitempty,max=2000"`
}
