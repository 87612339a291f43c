package errors

import (
	"errors"
	"strings"
)

var (
	ErrConfigUnresolvable = errors.New("config path unresolvable")
	ErrConfigNoParent     = errors.New("no parent directory for config path")
	ErrWorkdirFailed      = errors.New("working-directory change failed")
	ErrConfigLoadFailed   = errors.New("config parse/load failed")
	ErrDNSFailed          = errors.New("DNS update failed")
	ErrPullFailed         = errors.New("pull failed")
	ErrServiceStartFailed = errors.New("service spawn failed")
	ErrServiceWaitFailed  = errors.New("wait-for-exit failed")
	ErrPushFailed         = errors.New("push failed")
)

// StageError records which pipeline stage failed and the human context for it.
// Type is one of the sentinel errors above; errors.Is matches both Type and
// anything in the wrapped cause chain.
type StageError struct {
	Type        error
	Stage       string
	Context     string
	Suggestion  string
	OriginalErr error
}

func (e *StageError) Error() string {
	if e.OriginalErr == nil {
		return e.Context
	}
	return e.Context + ": " + e.OriginalErr.Error()
}

func (e *StageError) Unwrap() error {
	return e.OriginalErr
}

func (e *StageError) Is(target error) bool {
	return target == e.Type
}

// Causes returns the cause chain below the context line, one entry per wrap level.
func (e *StageError) Causes() []string {
	return Chain(e.OriginalErr)
}

func NewStageError(errorType error, stage, context, suggestion string, originalErr error) *StageError {
	return &StageError{
		Type:        errorType,
		Stage:       stage,
		Context:     context,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewBootstrapError(errorType error, context string, originalErr error) *StageError {
	return NewStageError(errorType, "bootstrap", context, "", originalErr)
}

func NewDNSError(context, suggestion string, originalErr error) *StageError {
	return NewStageError(ErrDNSFailed, "dns", context, suggestion, originalErr)
}

func NewPullError(context string, originalErr error) *StageError {
	return NewStageError(ErrPullFailed, "pull", context, "", originalErr)
}

func NewServiceError(errorType error, context string, originalErr error) *StageError {
	return NewStageError(errorType, "service", context, "", originalErr)
}

func NewPushError(context string, originalErr error) *StageError {
	return NewStageError(ErrPushFailed, "push", context, "", originalErr)
}

// Chain splits a wrapped error into one message per wrap level, outermost
// first. A level's text is its message with the wrapped error's text removed,
// so "a: b: c" built with %w renders as ["a", "b", "c"].
func Chain(err error) []string {
	var lines []string
	for err != nil {
		msg := err.Error()
		next := errors.Unwrap(err)
		if next != nil {
			msg = strings.TrimSuffix(msg, next.Error())
			msg = strings.TrimSuffix(strings.TrimSpace(msg), ":")
		}
		if msg != "" {
			lines = append(lines, strings.Split(msg, "\n")...)
		}
		err = next
	}
	return lines
}
