package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/pkg/civil"
)

type Medication struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	TenantID     uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	PatientID    uuid.UUID   `db:"patient_id" json:"patient_id"`
	Name         string      `db:"name" json:"name"`
	Dosage       string      `db:"dosage" json:"dosage"`
	Frequency    string      `db:"frequency" json:"frequency"`
	Route        *string     `db:"route" json:"route,omitempty"`
	StartDate    civil.Date  `db:"start_date" json:"start_date"`
	EndDate      *civil.Date `db:"end_date" json:"end_date,omitempty"`
	Status       string      `db:"status" json:"status"`
	PrescribedBy *string     `db:"prescribed_by" json:"prescribed_by,omitempty"`
	CreatedBy    *string     `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy    *string     `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Input is the request body. The patient comes from the route.
type Input struct {
	Name         string      `json:"name" validate:"required,max=200"`
	Dosage       string      `json:"dosage" validate:"required,max=100"`
	Frequency    string      `json:"frequency" validate:"required,max=100"`
	Route        *string     `json:"route" validate:"omitempty,max=50"`
	StartDate    civil.Date  `json:"start_date" validate:"required"`
	EndDate      *civil.Date `json:"end_date"`
	Status       string      `json:"status" validate:"omitempty,oneof=active paused discontinued completed"`
	PrescribedBy *string     `json:"prescribed_by" validate:"omitempty,max=200"`
}

func (in *Input) apply(m *Medication) {
	m.Name = in.Name
	m.Dosage = in.Dosage
	m.Frequency = in.Frequency
	m.Route = in.Route
	m.StartDate = in.StartDate
	m.EndDate = in.EndDate
	m.Status = in.Status
	m.PrescribedBy = in.PrescribedBy
	if m.Status == "" {
		m.Status = "active"
	}
}
