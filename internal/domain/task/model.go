package task

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	AssignedTo  *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	Priority    string     `db:"priority" json:"priority"`
	Status      string     `db:"status" json:"status"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy   *string    `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type Input struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	PatientID   *uuid.UUID `json:"patient_id"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitempty,max=255"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in-progress blocked done cancelled"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=todo in-progress blocked done cancelled"`
}

type ListFilter struct {
	Status     string
	Priority   string
	AssignedTo string
	PatientID  *uuid.UUID
}

func blankToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (in *Input) apply(t *Task) {
	t.Title = in.Title
	t.Description = blankToNil(in.Description)
	t.PatientID = in.PatientID
	t.AssignedTo = blankToNil(in.AssignedTo)
	t.DueDate = in.DueDate
	t.Priority = in.Priority
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if in.Status != "" {
		t.Status = in.Status
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
}

// setStatus moves t to status and keeps completed_at in step with it.
func (t *Task) setStatus(status string, now time.Time) {
	t.Status = status
	switch {
	case status == StatusDone && t.CompletedAt == nil:
		t.CompletedAt = &now
	case status != StatusDone:
		t.CompletedAt = nil
	}
}
