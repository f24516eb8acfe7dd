package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/pkg/civil"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeceased = "deceased"
)

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth civil.Date `db:"date_of_birth" json:"date_of_birth"`
	Gender      string     `db:"gender" json:"gender"`
	NHSNumber   *string    `db:"nhs_number" json:"nhs_number,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	Status      string     `db:"status" json:"status"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy   *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Input is the body of create and update requests.
type Input struct {
	FirstName   string     `json:"first_name" validate:"required,max=100"`
	LastName    string     `json:"last_name" validate:"required,max=100"`
	DateOfBirth civil.Date `json:"date_of_birth" validate:"required"`
	Gender      string     `json:"gender" validate:"omitempty,oneof=male female other unknown"`
	NHSNumber   *string    `json:"nhs_number" validate:"omitempty,nhs_number"`
	Email       *string    `json:"email" validate:"omitempty,email,max=320"`
	Phone       *string    `json:"phone" validate:"omitempty,max=40"`
	Address     *string    `json:"address"`
	Status      string     `json:"status" validate:"omitempty,oneof=active inactive deceased"`
}

func (in *Input) apply(p *Patient) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.DateOfBirth = in.DateOfBirth
	p.Gender = in.Gender
	p.NHSNumber = blankToNil(in.NHSNumber)
	p.Email = blankToNil(in.Email)
	p.Phone = blankToNil(in.Phone)
	p.Address = blankToNil(in.Address)
	p.Status = in.Status
	if p.Gender == "" {
		p.Gender = "unknown"
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

type ListFilter struct {
	Query  string
	Status string
}
