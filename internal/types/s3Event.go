package types

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// S3Notification is the bucket notification envelope shared by AWS S3 and MinIO.
type S3Notification struct {
	EventName string          `json:"EventName,omitempty"`
	Key       string          `json:"Key,omitempty"`
	Records   []S3EventRecord `json:"Records"`
}

type S3EventRecord struct {
	EventVersion string    `json:"eventVersion"`
	EventSource  string    `json:"eventSource"`
	AwsRegion    string    `json:"awsRegion"`
	EventTime    string    `json:"eventTime"`
	EventName    string    `json:"eventName"`
	S3           EventData `json:"s3"`
}

type EventData struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object S3ObjectDetails `json:"object"`
}

// S3ObjectDetails carries the object fields of a record. ContentType is only
// populated by MinIO; AWS notifications leave it empty.
type S3ObjectDetails struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ETag        string `json:"eTag"`
	ContentType string `json:"contentType"`
	Sequencer   string `json:"sequencer"`
}

// IsObjectCreated reports whether an event name denotes a finalized write.
// AWS uses "ObjectCreated:Put", MinIO "s3:ObjectCreated:Put".
func IsObjectCreated(eventName string) bool {
	return strings.HasPrefix(strings.TrimPrefix(eventName, "s3:"), "ObjectCreated:")
}

// UploadEvents converts every ObjectCreated record into an UploadEvent. Other
// records (deletes, s3:TestEvent) are dropped.
func (n S3Notification) UploadEvents() ([]UploadEvent, error) {
	events := make([]UploadEvent, 0, len(n.Records))
	for _, rec := range n.Records {
		if !IsObjectCreated(rec.EventName) {
			continue
		}
		key, err := DecodeObjectKey(rec.S3.Object.Key)
		if err != nil {
			return nil, err
		}
		id := rec.S3.Object.Sequencer
		if id == "" {
			id = uuid.NewString()
		}
		events = append(events, UploadEvent{
			ID:          id,
			EventName:   rec.EventName,
			Bucket:      rec.S3.Bucket.Name,
			Path:        key,
			ContentType: rec.S3.Object.ContentType,
			Size:        rec.S3.Object.Size,
		})
	}
	return events, nil
}

// DecodeObjectKey undoes the form encoding S3 applies to keys in notifications
// ("my+cat.png" -> "my cat.png").
func DecodeObjectKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode object key %q: %w", raw, err)
	}
	return key, nil
}
