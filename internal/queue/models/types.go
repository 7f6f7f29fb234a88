package models

// ProcessingError carries the delivery decision for a failure that is not a
// pipeline stage error, e.g. a payload that is not a bucket notification.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}
