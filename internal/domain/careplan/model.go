package careplan

import (
	"time"

	"github.com/google/uuid"

	"github.com/careadmin/careadmin/pkg/civil"
)

// Goal is one measurable outcome of a care plan, stored in the goals JSONB
// column.
type Goal struct {
	Description string      `json:"description" validate:"required,max=500"`
	TargetDate  *civil.Date `json:"target_date,omitempty"`
	Achieved    bool        `json:"achieved"`
}

type CarePlan struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	TenantID    uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	Title       string      `db:"title" json:"title"`
	Description *string     `db:"description" json:"description,omitempty"`
	Status      string      `db:"status" json:"status"`
	StartDate   civil.Date  `db:"start_date" json:"start_date"`
	EndDate     *civil.Date `db:"end_date" json:"end_date,omitempty"`
	ReviewDate  *civil.Date `db:"review_date" json:"review_date,omitempty"`
	Goals       []Goal      `db:"goals" json:"goals"`
	CreatedBy   *string     `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

type Input struct {
	PatientID   uuid.UUID   `json:"patient_id" validate:"required"`
	Title       string      `json:"title" validate:"required,max=200"`
	Description *string     `json:"description"`
	Status      string      `json:"status" validate:"omitempty,oneof=draft active on-hold completed cancelled"`
	StartDate   civil.Date  `json:"start_date" validate:"required"`
	EndDate     *civil.Date `json:"end_date"`
	ReviewDate  *civil.Date `json:"review_date"`
	Goals       []Goal      `json:"goals" validate:"omitempty,max=50,dive"`
}

func (in *Input) apply(p *CarePlan) {
	p.PatientID = in.PatientID
	p.Title = in.Title
	p.Description = in.Description
	p.Status = in.Status
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	p.ReviewDate = in.ReviewDate
	p.Goals = in.Goals
	if p.Status == "" {
		p.Status = "draft"
	}
	if p.Goals == nil {
		p.Goals = []Goal{}
	}
}

type ListFilter struct {
	PatientID *uuid.UUID
	Status    string
}
