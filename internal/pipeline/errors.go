package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/mahirjain10/image-optimizer/internal/storage"
)

// FetchError means the source object could not be materialized locally.
type FetchError struct {
	Bucket string
	Path   string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TranscodeError means the local artifact could not be decoded or re-encoded.
type TranscodeError struct {
	Path string
	Err  error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// PublishError means the derived object was not written to its destination.
type PublishError struct {
	Bucket string
	Path   string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s/%s: %v", e.Bucket, e.Path, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// CleanupWarning records a failed local reclaim. It is reported through
// Result.Warnings and logs, never as the error of an invocation.
type CleanupWarning struct {
	Dir string
	Err error
}

func (e *CleanupWarning) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Dir, e.Err)
}

func (e *CleanupWarning) Unwrap() error { return e.Err }

// Retryable reports whether redelivering the event could succeed where this
// invocation failed. Missing sources and undecodable images never will.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TranscodeError
	if errors.As(err, &te) {
		return false
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var fe *FetchError
	var pe *PublishError
	return errors.As(err, &fe) || errors.As(err, &pe)
}
