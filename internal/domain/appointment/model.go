package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusConfirmed: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusNoShow:    true,
}

// occupies reports whether an appointment in status blocks the
// professional's calendar.
func occupies(status string) bool {
	return status != StatusCancelled && status != StatusNoShow
}

type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	TenantID           uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	CareProfessionalID *uuid.UUID `db:"care_professional_id" json:"care_professional_id,omitempty"`
	Title              string     `db:"title" json:"title"`
	StartTime          time.Time  `db:"start_time" json:"start_time"`
	EndTime            time.Time  `db:"end_time" json:"end_time"`
	Status             string     `db:"status" json:"status"`
	Type               string     `db:"type" json:"type"`
	Location           *string    `db:"location" json:"location,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy          *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy          *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type Input struct {
	PatientID          uuid.UUID  `json:"patient_id" validate:"required"`
	CareProfessionalID *uuid.UUID `json:"care_professional_id"`
	Title              string     `json:"title" validate:"required,max=200"`
	StartTime          time.Time  `json:"start_time" validate:"required"`
	EndTime            time.Time  `json:"end_time" validate:"required,gtfield=StartTime"`
	Status             string     `json:"status" validate:"omitempty,oneof=scheduled confirmed completed cancelled no-show"`
	Type               string     `json:"type" validate:"omitempty,oneof=in-person video phone home-visit"`
	Location           *string    `json:"location" validate:"omitempty,max=200"`
	Notes              *string    `json:"notes"`
}

func (in *Input) apply(a *Appointment) {
	a.PatientID = in.PatientID
	a.CareProfessionalID = in.CareProfessionalID
	a.Title = in.Title
	a.StartTime = in.StartTime.UTC()
	a.EndTime = in.EndTime.UTC()
	a.Status = in.Status
	a.Type = in.Type
	a.Location = in.Location
	a.Notes = in.Notes
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Type == "" {
		a.Type = "in-person"
	}
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=scheduled confirmed completed cancelled no-show"`
}

// ListFilter selects appointments overlapping [From, To) and matching the
// optional ids.
type ListFilter struct {
	From               *time.Time
	To                 *time.Time
	PatientID          *uuid.UUID
	CareProfessionalID *uuid.UUID
	Status             string
}
