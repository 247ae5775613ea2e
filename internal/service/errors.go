package service

import (
	"errors"
	"strings"

	"github.com/Shivanand-hulikatti/orgevents/internal/model"
)

// Kind classifies a command failure.
type Kind string

const (
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindValidation            Kind = "validation_failed"
	KindNotFound              Kind = "not_found"
	KindConflict              Kind = "conflict"
	KindEventFull             Kind = "event_full"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindInvalidStatus         Kind = "invalid_status"
)

// Conflict codes.
const (
	CodeDuplicate        = "duplicate"
	CodeAlreadyPublished = "already_published"
	CodeNoChange         = "no_change"
	CodeEventStarted     = "event_started"
)

// Field issue codes.
const (
	IssueRequired           = "required"
	IssueInvalidFormat      = "invalid_format"
	IssueNegative           = "negative"
	IssueStartAfterEnd      = "start_not_before_end"
	IssueBelowRegistrations = "below_registrations"
)

// Error is the typed failure returned by every command.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Issues  []model.FieldIssue
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, is := range e.Issues {
			parts[i] = is.Field + ": " + is.Issue
		}
		return string(e.Kind) + " (" + strings.Join(parts, ", ") + ")"
	}
	return string(e.Kind)
}

// Is reports whether target carries the same kind, and the same code when
// target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrAlreadyPublished      = &Error{Kind: KindConflict, Code: CodeAlreadyPublished}
	ErrEventFull             = &Error{Kind: KindEventFull}
	ErrDuplicateRegistration = &Error{Kind: KindDuplicateRegistration}
	ErrInvalidStatus         = &Error{Kind: KindInvalidStatus}
)

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func notFound(what string) *Error {
	return newError(KindNotFound, "", what+" not found")
}

func conflict(code, message string) *Error {
	return newError(KindConflict, code, message)
}

// issues accumulates field-level problems; checks never short-circuit.
type issues []model.FieldIssue

func (is *issues) add(field, issue string) {
	*is = append(*is, model.FieldIssue{Field: field, Issue: issue})
}

func (is issues) err() error {
	if len(is) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Issues: is}
}

// ErrorKind maps an error to a stable logging and metrics label.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return "unexpected"
}
