package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by how the dialogue recovers from them.
type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindTransformation ErrorKind = "transformation"
	ErrorKindExternal       ErrorKind = "external"
	ErrorKindResource       ErrorKind = "resource"
)

// BotError carries a kind, a user-facing message and the cause.
type BotError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, message string, err error) *BotError {
	return &BotError{Kind: kind, Message: message, Err: err}
}

// ValidationError: malformed user parameters. The stage is kept and input re-requested.
func ValidationError(message string, err error) *BotError {
	return NewError(ErrorKindValidation, message, err)
}

// TransformationError: the document library failed.
func TransformationError(message string, err error) *BotError {
	return NewError(ErrorKindTransformation, message, err)
}

// ExternalServiceError: OCR engine or cloud API failure.
func ExternalServiceError(message string, err error) *BotError {
	return NewError(ErrorKindExternal, message, err)
}

// ResourceError: scratch storage is unusable; the session is discarded.
func ResourceError(message string, err error) *BotError {
	return NewError(ErrorKindResource, message, err)
}

var (
	ErrNoSession       = errors.New("no active session")
	ErrNoFiles         = errors.New("no files uploaded")
	ErrWrongPassword   = errors.New("wrong password")
	ErrStateMismatch   = errors.New("oauth state mismatch")
	ErrNotAuthorized   = errors.New("cloud storage not authorized")
	ErrUnsupportedKind = errors.New("unsupported file kind")
	ErrUnknownAction   = errors.New("unknown action")
	ErrEngineMissing   = errors.New("ocr engine not available")
)

// KindOf classifies err. Unclassified errors count as transformation failures.
func KindOf(err error) ErrorKind {
	var be *BotError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ErrorKindTransformation
}

// UserMessage returns the text shown to the user for err.
func UserMessage(err error) string {
	var be *BotError
	if errors.As(err, &be) {
		if be.Err != nil {
			return fmt.Sprintf("%s: %v", be.Message, be.Err)
		}
		return be.Message
	}
	return err.Error()
}
