package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindCredentialRequired ErrorKind = "credential_required"
	ErrorKindProvider           ErrorKind = "provider"
	ErrorKindNoArtifact         ErrorKind = "no_artifact_produced"
	ErrorKindCancelled          ErrorKind = "cancelled"
	ErrorKindPersistenceCorrupt ErrorKind = "persistence_corrupt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrProvider           = errors.New("provider failure")
	ErrCredentialRequired = errors.New("credential required")
	ErrNoArtifact         = errors.New("no artifact produced")
	ErrCancelled          = errors.New("cancelled")
	ErrPersistenceCorrupt = errors.New("persisted state is corrupt")

	ErrBusy              = errors.New("surface busy")
	ErrNoPendingDecision = errors.New("no pending correction decision")
	ErrUnknownSurface    = errors.New("unknown surface")
	ErrNotFound          = errors.New("not found")
)

var kindSentinels = map[ErrorKind]error{
	ErrorKindValidation:         ErrValidation,
	ErrorKindProvider:           ErrProvider,
	ErrorKindCredentialRequired: ErrCredentialRequired,
	ErrorKindNoArtifact:         ErrNoArtifact,
	ErrorKindCancelled:          ErrCancelled,
	ErrorKindPersistenceCorrupt: ErrPersistenceCorrupt,
}

// Error carries a user-facing message together with its classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError builds a classified error wrapping cause, which may be nil.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrCancelled) and friends match on Kind.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && sentinel == target {
		return true
	}
	return false
}

// Failure converts the error into its state representation.
func (e *Error) Failure() *Failure {
	return &Failure{Kind: e.Kind, Message: e.Message}
}

// KindOf extracts the classification of err, reporting false for unclassified errors.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
