package types

import (
	"errors"
	"fmt"
)

// Kind tags the stage-level failure a PipelineError represents.
type Kind int

const (
	KindDecodeFailure Kind = iota + 1
	KindEmptyFile
	KindMissingFile
	KindEngineUnavailable
	KindEngineInvocationFailure
	KindResultParseFailure
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindDecodeFailure:
		return "DecodeFailure"
	case KindEmptyFile:
		return "EmptyFile"
	case KindMissingFile:
		return "MissingFile"
	case KindEngineUnavailable:
		return "EngineUnavailable"
	case KindEngineInvocationFailure:
		return "EngineInvocationFailure"
	case KindResultParseFailure:
		return "ResultParseFailure"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel errors, one per kind. errors.Is(err, ErrEmptyFile) matches any
// PipelineError of that kind.
var (
	ErrDecodeFailure           = &PipelineError{Kind: KindDecodeFailure}
	ErrEmptyFile               = &PipelineError{Kind: KindEmptyFile}
	ErrMissingFile             = &PipelineError{Kind: KindMissingFile}
	ErrEngineUnavailable       = &PipelineError{Kind: KindEngineUnavailable}
	ErrEngineInvocationFailure = &PipelineError{Kind: KindEngineInvocationFailure}
	ErrResultParseFailure      = &PipelineError{Kind: KindResultParseFailure}
	ErrInvalidInput            = &PipelineError{Kind: KindInvalidInput}
)

// PipelineError is the error every pipeline stage returns.
type PipelineError struct {
	Kind   Kind
	Detail string
	Err    error
}

// NewError builds a PipelineError of the given kind wrapping err (which may be nil).
func NewError(kind Kind, detail string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Detail: detail, Err: err}
}

func (e *PipelineError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Is reports kind equality so the package-level sentinels work with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of a PipelineError in err's chain, or 0 if none.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
