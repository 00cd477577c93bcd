package core

import (
	"errors"
	"fmt"

	"gwi.com/resume-screener/internal/loader"
	"gwi.com/resume-screener/internal/store"
)

var (
	ErrUnreadableDocument     = loader.ErrUnreadableDocument
	ErrExtractionFailed       = errors.New("failed to extract analysis from model output")
	ErrAllAnalysesFailed      = errors.New("no resume could be analyzed")
	ErrIndexBuildFailed       = errors.New("failed to build session index")
	ErrSessionNotFound        = store.ErrSessionNotFound
	ErrAnswerGenerationFailed = errors.New("failed to generate answer")
)

// FileError reports why one file of a batch was skipped.
type FileError struct {
	Filename string
	Op       string
	BaseErr  error
	Cause    error
	// Raw is the unparsed model output, when there was any.
	Raw string
}

func (e *FileError) Error() string {
	msg := fmt.Sprintf("%s (op: %s, file: %s)", e.BaseErr, e.Op, e.Filename)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FileError) Unwrap() error {
	return e.BaseErr
}

func (e *FileError) Is(target error) bool {
	return errors.Is(e.BaseErr, target) || (e.Cause != nil && errors.Is(e.Cause, target))
}

func newLoadError(filename string, cause error) error {
	return &FileError{Filename: filename, Op: "load", BaseErr: ErrUnreadableDocument, Cause: cause}
}

func newExtractionError(filename, raw string, cause error) error {
	return &FileError{Filename: filename, Op: "extract", BaseErr: ErrExtractionFailed, Cause: cause, Raw: raw}
}
