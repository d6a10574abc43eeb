package models

import "time"

type Node struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	ParentID     *string   `json:"parent_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsFolder     bool      `json:"is_folder"`
	SizeBytes    int64     `json:"size_bytes"`
	MimeType     string    `json:"mime_type"`
	BlobURL      *string   `json:"blob_url"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	IsStarred    bool      `json:"is_starred"`
	IsTrashed    bool      `json:"is_trashed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
