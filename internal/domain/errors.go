package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindProcessing ErrorKind = "processing"
	KindStorage    ErrorKind = "storage"
	KindTimeout    ErrorKind = "timeout"
	KindTransport  ErrorKind = "transport"
)

var (
	ErrMalformedEnvelope = errors.New("request is not a valid JSON object")
	ErrMissingImage      = errors.New("missing 'image' field in request")
	ErrInvalidBase64     = errors.New("image field is not valid base64")
	ErrEmptyPayload      = errors.New("decoded image payload is empty")
)

// StageError is the normalized error shape carried in a Response. Trace is
// only populated when a stage runs with debug traces enabled.
type StageError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Trace   string    `json:"trace,omitempty"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Failure builds an unsuccessful response whose message is prefixed with the
// stage name.
func Failure(kind ErrorKind, stageName string, err error) Response {
	return Response{
		Success: false,
		Error: &StageError{
			Kind:    kind,
			Message: fmt.Sprintf("%s: %v", stageName, err),
		},
	}
}

func (r Response) ErrorKind() ErrorKind {
	if r.Error == nil {
		return ""
	}
	return r.Error.Kind
}

func (r Response) ErrorString() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}
