package models

import "time"

type AttachmentStatus string

const (
	AttachmentStatusProcessing AttachmentStatus = "processing"
	AttachmentStatusReady      AttachmentStatus = "ready"
	AttachmentStatusFailed     AttachmentStatus = "failed"
)

// Attachment is an uploaded picture file. Its ID is the picture handle kept
// in user histories.
type Attachment struct {
	ID        int64
	UserID    int64
	Bucket    string
	ObjectKey string
	FileName  string
	MIME      string
	Format    string
	Width     int
	Height    int
	SizeBytes int64
	Status    AttachmentStatus
	Checksum  []byte
	Signature []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
