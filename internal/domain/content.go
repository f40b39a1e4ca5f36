package domain

import "time"

// ContentDescriptor is the transient result of pinning a payload to the
// off-chain content service. It exists only between the uploading stage and
// transaction submission; the CID then becomes the record's immutable
// on-chain content reference.
type ContentDescriptor struct {
	CID       string    `json:"cid"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
}

// MediaDescriptor points at a separately pinned media payload from within a
// metadata document.
type MediaDescriptor struct {
	CID         string `json:"cid"`
	Kind        string `json:"kind"`
	ContentType string `json:"contentType,omitempty"`
}

// ContentMetadata is the JSON metadata document a record's content reference
// resolves to. For video records it is pinned second and embeds the media's
// CID so structured fields travel with the record.
type ContentMetadata struct {
	Title    string           `json:"title,omitempty"`
	Name     string           `json:"name,omitempty"`
	Content  string           `json:"content,omitempty"`
	Text     string           `json:"text,omitempty"`
	Summary  string           `json:"summary,omitempty"`
	Category string           `json:"category,omitempty"`
	Kind     string           `json:"kind,omitempty"`
	Media    *MediaDescriptor `json:"media,omitempty"`
}
