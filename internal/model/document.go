package model

import "time"

// Document is a stored document's metadata.
// This is a pure domain model with no database-specific dependencies or tags.
// The content itself lives in object storage under StoragePath, one object per content version.
type Document struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Metadata    map[string]string `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StoragePath string            `json:"-"`
}

// DocumentList is one page of documents plus the total count at query time.
type DocumentList struct {
	Items  []Document `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// DocumentContent is a contiguous window of a document's text.
// TotalLength is always the length of the whole document, independent of the window.
type DocumentContent struct {
	Content     string `json:"content"`
	TotalLength int    `json:"total_length"`
	Offset      int    `json:"offset"`
	Length      int    `json:"length"`
}
