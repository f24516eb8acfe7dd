package document

import (
	"time"

	"github.com/google/uuid"
)

// Document is metadata for a file held in external storage; the bytes never
// pass through this service.
type Document struct {
	ID         uuid.UUID `db:"id" json:"id"`
	TenantID   uuid.UUID `db:"tenant_id" json:"tenant_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category"`
	FileName   string    `db:"file_name" json:"file_name"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	StorageURL string    `db:"storage_url" json:"storage_url"`
	CreatedBy  *string   `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy  *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type Input struct {
	Title      string `json:"title" validate:"required,max=200"`
	Category   string `json:"category" validate:"omitempty,oneof=clinical consent correspondence report other"`
	FileName   string `json:"file_name" validate:"required,max=255"`
	MimeType   string `json:"mime_type" validate:"required,max=100"`
	SizeBytes  int64  `json:"size_bytes" validate:"gte=0,lte=104857600"`
	StorageURL string `json:"storage_url" validate:"required,url"`
}

func (in *Input) apply(d *Document) {
	d.Title = in.Title
	d.Category = in.Category
	d.FileName = in.FileName
	d.MimeType = in.MimeType
	d.SizeBytes = in.SizeBytes
	d.StorageURL = in.StorageURL
	if d.Category == "" {
		d.Category = "other"
	}
}
