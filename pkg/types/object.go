package types

import "github.com/google/uuid"

// FileVersion is immutable content bound into the version graph: the ordered
// chunk list and total hash for one piece of content, scoped to a space.
// Many tree entries across snapshots may reference the same FileVersion.
type FileVersion struct {
	ID          uuid.UUID `json:"id"`
	Space       uuid.UUID `json:"space"`
	ContentHash string    `json:"content_hash"`
	Size        uint64    `json:"size"`
	MimeType    string    `json:"mime_type,omitempty"`
	Manifest    Manifest  `json:"manifest"`
	CreatedAt   int64     `json:"created_at"` // Unix nano
}

// ObjectVersion represents one version of a flat-namespace object.
// Exactly one version per (space, bucket, key) has IsCurrent set.
type ObjectVersion struct {
	ID        uuid.UUID `json:"id"`
	Space     uuid.UUID `json:"space"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Version   uint64    `json:"version"`
	Size      uint64    `json:"size"`
	ETag      string    `json:"etag"`
	MimeType  string    `json:"mime_type,omitempty"`
	Manifest  Manifest  `json:"manifest"`
	IsCurrent bool      `json:"is_current"`
	CreatedAt int64     `json:"created_at"`           // Unix nano
	DeletedAt int64     `json:"deleted_at,omitempty"` // tombstone, never synchronous reclaim
}

// IsDeleted returns true if the version carries a tombstone
func (o *ObjectVersion) IsDeleted() bool {
	return o.DeletedAt > 0
}
