package transcriber

import (
	"errors"
	"fmt"
)

// ErrUnauthorized means the service rejected the configured credentials.
var ErrUnauthorized = errors.New("credentials rejected")

// FatalTranscriptionError marks an error that retrying will not fix.
type FatalTranscriptionError struct {
	Err error
}

func (e *FatalTranscriptionError) Error() string {
	if e == nil || e.Err == nil {
		return "fatal transcription error"
	}
	return e.Err.Error()
}

func (e *FatalTranscriptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewFatalTranscriptionError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalTranscriptionError{Err: err}
}

func IsFatalTranscriptionError(err error) bool {
	var fatal *FatalTranscriptionError
	return errors.As(err, &fatal)
}

// statusError classifies an HTTP status returned by a transcription service.
func statusError(service string, code int) error {
	switch code {
	case 401, 403:
		return NewFatalTranscriptionError(fmt.Errorf("%s: status %d: %w", service, code, ErrUnauthorized))
	case 400, 404, 422:
		return NewFatalTranscriptionError(fmt.Errorf("%s: status %d", service, code))
	}
	return fmt.Errorf("%s: status %d", service, code)
}
