// Package apperrors holds the error categories shared by every service.
//
// Service packages declare their own sentinels wrapping one of these categories, so callers can
// match either the precise sentinel or the broad category with errors.Is.
package apperrors

import (
	"errors"
)

var (
	ErrValidation                 = errors.New("validation failed")
	ErrNotFound                   = errors.New("not found")
	ErrSelfInvite                 = errors.New("cannot invite yourself")
	ErrDuplicatePendingInvitation = errors.New("a pending invitation already exists")
	ErrAlreadyMember              = errors.New("already a member")
	ErrAuthenticationRequired     = errors.New("authentication required")
	ErrForbidden                  = errors.New("forbidden")
	ErrConflict                   = errors.New("conflict")
	ErrRemoteFailure              = errors.New("remote failure")
)

type kindError struct {
	msg      string
	category error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.category }

// Kind builds a sentinel that matches both itself and its category. Its message is msg alone,
// so it can be shown to users as is.
func Kind(category error, msg string) error {
	return &kindError{msg: msg, category: category}
}

// Validation returns a validation failure carrying a field-level message.
func Validation(msg string) error {
	return Kind(ErrValidation, msg)
}
