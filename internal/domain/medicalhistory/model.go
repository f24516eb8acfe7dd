package medicalhistory

import (
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/pkg/civil"
)

// SourceManual marks entries typed in by staff. Synced entries carry the
// name of the integration that produced them and its record id.
const SourceManual = "manual"

type Entry struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	TenantID     uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	PatientID    uuid.UUID   `db:"patient_id" json:"patient_id"`
	Category     string      `db:"category" json:"category"`
	Title        string      `db:"title" json:"title"`
	Description  *string     `db:"description" json:"description,omitempty"`
	OnsetDate    *civil.Date `db:"onset_date" json:"onset_date,omitempty"`
	ResolvedDate *civil.Date `db:"resolved_date" json:"resolved_date,omitempty"`
	Severity     *string     `db:"severity" json:"severity,omitempty"`
	Status       string      `db:"status" json:"status"`
	Source       string      `db:"source" json:"source"`
	ExternalID   *string     `db:"external_id" json:"external_id,omitempty"`
	CreatedBy    *string     `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy    *string     `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

type Input struct {
	Category     string      `json:"category" validate:"required,oneof=condition surgery allergy immunization family social"`
	Title        string      `json:"title" validate:"required,max=200"`
	Description  *string     `json:"description" validate:"omitempty,max=5000"`
	OnsetDate    *civil.Date `json:"onset_date"`
	ResolvedDate *civil.Date `json:"resolved_date"`
	Severity     *string     `json:"severity" validate:"omitempty,oneof=mild moderate severe"`
	Status       string      `json:"status" validate:"omitempty,oneof=active resolved inactive"`
}

func (in *Input) apply(e *Entry) {
	e.Category = in.Category
	e.Title = in.Title
	e.Description = in.Description
	if e.Description != nil && *e.Description == "" {
		e.Description = nil
	}
	e.OnsetDate = in.OnsetDate
	e.ResolvedDate = in.ResolvedDate
	e.Severity = in.Severity
	if e.Severity != nil && *e.Severity == "" {
		e.Severity = nil
	}
	e.Status = in.Status
	if e.Status == "" {
		e.Status = "active"
		if e.ResolvedDate != nil {
			e.Status = "resolved"
		}
	}
	if e.Source == "" {
		e.Source = SourceManual
	}
}
