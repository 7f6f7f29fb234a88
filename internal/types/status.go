package types

// StatusData represents the inner payload
type StatusData struct {
	EventID         string `json:"eventId"`
	Bucket          string `json:"bucket"`
	SourcePath      string `json:"sourcePath"`
	Status          string `json:"status"`
	DestinationPath string `json:"destinationPath,omitempty"`
	ErrorMsg        string `json:"errorMsg,omitempty"`
}

// StatusMessage represents the full message envelope
type StatusMessage struct {
	Pattern string     `json:"pattern"`
	Data    StatusData `json:"data"`
}

const PROCESSED = "PROCESSED"
const FAILED = "FAILED"
const SKIPPED = "SKIPPED"
