package types

import "github.com/google/uuid"

// UploadEvent describes one finalized object write in the storage service.
type UploadEvent struct {
	ID          string `json:"id"`
	EventName   string `json:"eventName,omitempty"`
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// NewUploadEvent returns an event with a freshly generated ID.
func NewUploadEvent(bucket, path, contentType string, size int64) UploadEvent {
	return UploadEvent{
		ID:          uuid.NewString(),
		Bucket:      bucket,
		Path:        path,
		ContentType: contentType,
		Size:        size,
	}
}

// DerivedObject is the published, transcoded counterpart of a source object.
type DerivedObject struct {
	Bucket       string `json:"bucket"`
	Path         string `json:"path"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	OriginalName string `json:"originalName"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ETag         string `json:"etag,omitempty"`
	VersionID    string `json:"versionId,omitempty"`
}
