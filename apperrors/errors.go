package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("permission denied")
	ErrBadRequest         = errors.New("bad request")
	ErrTransactionFailure = errors.New("transaction failed")
)

// Codes carried by soft failures the client is expected to branch on.
const (
	CodeAlreadyMember    = "ALREADY_MEMBER"
	CodeAlreadyRequested = "ALREADY_REQUESTED"
	CodeRequestResolved  = "REQUEST_RESOLVED"
	CodeDuplicateBook    = "DUPLICATE_BOOK"
	CodeInvalidStatus    = "INVALID_STATUS_TRANSITION"
	CodeConcurrentUpdate = "CONCURRENT_UPDATE"
)

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err     error
	Message string
	Code    string
}

func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// WithCode adds an error code
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}

func NewNotFoundError(message string) *CustomError {
	return &CustomError{Err: ErrNotFound, Message: message}
}

func NewConflictError(message string) *CustomError {
	return &CustomError{Err: ErrConflict, Message: message}
}

func NewForbiddenError(message string) *CustomError {
	return &CustomError{Err: ErrForbidden, Message: message}
}

func NewBadRequestError(message string) *CustomError {
	return &CustomError{Err: ErrBadRequest, Message: message}
}

type transactionError struct {
	cause error
}

func (e *transactionError) Error() string {
	return "transaction failed: " + e.cause.Error()
}

func (e *transactionError) Unwrap() []error {
	return []error{ErrTransactionFailure, e.cause}
}

// NewTransactionError wraps a persistence failure of an atomic unit of work.
// Both the sentinel and the cause stay reachable through errors.Is.
func NewTransactionError(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTransactionFailure) {
		return cause
	}
	return &transactionError{cause: cause}
}

// CodeOf returns the Code of the first CustomError in err's chain.
func CodeOf(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Is returns whether err matches target or any of errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
