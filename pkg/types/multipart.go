package types

import "github.com/google/uuid"

// Upload represents an in-progress multipart upload
type Upload struct {
	ID        uuid.UUID `json:"id"`
	UploadID  string    `json:"upload_id"` // base64-encoded UUID handed to clients
	Space     uuid.UUID `json:"space"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Owner     string    `json:"owner"`
	MimeType  string    `json:"mime_type,omitempty"`
	Initiated int64     `json:"initiated"`  // Unix nano
	ExpiresAt int64     `json:"expires_at"` // Unix nano; sweep aborts past this
}

// UploadPart represents a single part of a multipart upload.
// Parts arrive out of order and concurrently; Complete is the only
// serialization point.
type UploadPart struct {
	ID         uuid.UUID `json:"id"`
	UploadID   string    `json:"upload_id"`
	PartNumber int       `json:"part_number"`
	Size       uint64    `json:"size"`
	ETag       string    `json:"etag"`
	Manifest   Manifest  `json:"manifest"`
	UploadedAt int64     `json:"uploaded_at"` // Unix nano
}
