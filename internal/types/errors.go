package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrPrerequisiteMissing ErrorKind = "PrerequisiteMissingError"
	ErrInvalidSource       ErrorKind = "InvalidSourceError"
	ErrDownload            ErrorKind = "DownloadError"
	ErrExtraction          ErrorKind = "ExtractionError"
	ErrTranscription       ErrorKind = "TranscriptionError"
	ErrClassification      ErrorKind = "ClassificationError"
)

// AnalysisError is the single error type crossing component boundaries.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	// StatusCode is the last HTTP status seen by retrieval; 0 when the failure
	// happened below HTTP.
	StatusCode int
	Err        error
}

func NewError(kind ErrorKind, err error, format string, args ...any) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *AnalysisError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind carried by err, or "" when err is not an AnalysisError.
func KindOf(err error) ErrorKind {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
