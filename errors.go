package bqship

import (
	"errors"
	"fmt"
)

// ErrFinished is returned when an Uploader is written to or finished after
// Finish has already been called.
var ErrFinished = errors.New("uploader already finished")

// UploadError reports a chunk whose transfer did not complete. Objects of
// sibling chunks that were already acknowledged are left remote.
type UploadError struct {
	Chunk int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of chunk %d failed: %v", e.Chunk, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
