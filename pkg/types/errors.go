package types

import (
	"errors"
	"fmt"
)

var (
	ErrWorldNotFound       = errors.New("world not found")
	ErrWorldExists         = errors.New("world already exists")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrBuilderExists       = errors.New("builder already added")
	ErrBuilderNotFound     = errors.New("builder not found")
	ErrDeletionBlacklisted = errors.New("world is protected from deletion")
	ErrWorldLimitReached   = errors.New("world limit reached")
	ErrInvalidName         = errors.New("invalid world name")
	ErrWorldFolderMissing  = errors.New("world folder does not exist")
	ErrWorldFolderExists   = errors.New("world folder already exists")
	ErrDataVersionTooHigh  = errors.New("world was saved by a newer version")
	ErrCancelled           = errors.New("cancelled by listener")
	ErrEngineUnavailable   = errors.New("world engine returned no world")
	ErrBackupNotFound      = errors.New("backup not found")
	ErrStorageClosed       = errors.New("backup storage is closed")
)

// RejectionError is a validation outcome of a world operation. It matches
// both its own sentinel and the wrapped cause through errors.Is.
type RejectionError struct {
	Reason Reason
	World  string
	Err    error
}

func (e *RejectionError) Error() string {
	msg := e.Reason.String()
	if s := e.Reason.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Err != nil && !errors.Is(e.Reason.sentinel(), e.Err) {
		msg += ": " + e.Err.Error()
	}
	if e.World == "" {
		return msg
	}
	return fmt.Sprintf("world %s: %s", e.World, msg)
}

func (e *RejectionError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Reason.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func Reject(reason Reason, world string) *RejectionError {
	return &RejectionError{Reason: reason, World: world}
}

func RejectWith(reason Reason, world string, err error) *RejectionError {
	return &RejectionError{Reason: reason, World: world, Err: err}
}

// IsRejection reports whether err is a validation rejection and returns its
// reason.
func IsRejection(err error) (Reason, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return 0, false
}

type BackupError struct {
	Backend string
	Op      string
	World   string
	Err     error
}

func (e *BackupError) Error() string {
	if e.World == "" {
		return fmt.Sprintf("%s backup %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("%s backup %s for %s: %v", e.Backend, e.Op, e.World, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

func NewBackupError(backend, op, world string, err error) *BackupError {
	return &BackupError{Backend: backend, Op: op, World: world, Err: err}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }
