package client

import (
	"errors"
	"fmt"

	"github.com/curaious/projecthub/internal/apperrors"
)

// Error categories reported by the API. Match them with errors.Is.
var (
	ErrValidation                 = apperrors.ErrValidation
	ErrNotFound                   = apperrors.ErrNotFound
	ErrSelfInvite                 = apperrors.ErrSelfInvite
	ErrDuplicatePendingInvitation = apperrors.ErrDuplicatePendingInvitation
	ErrAlreadyMember              = apperrors.ErrAlreadyMember
	ErrAuthenticationRequired     = apperrors.ErrAuthenticationRequired
	ErrForbidden                  = apperrors.ErrForbidden
	ErrConflict                   = apperrors.ErrConflict
	ErrRemoteFailure              = apperrors.ErrRemoteFailure
)

// ErrAcceptedNotCached reports an invitation that was accepted on the server while the joined
// project could not be fetched into the registry. The membership exists; a Load picks it up.
var ErrAcceptedNotCached = errors.New("invitation accepted but the project could not be loaded")

var categories = map[string]error{
	"invalid_request":              ErrValidation,
	"not_found":                    ErrNotFound,
	"self_invite":                  ErrSelfInvite,
	"duplicate_pending_invitation": ErrDuplicatePendingInvitation,
	"already_member":               ErrAlreadyMember,
	"authentication_required":      ErrAuthenticationRequired,
	"forbidden":                    ErrForbidden,
	"conflict":                     ErrConflict,
	"remote_failure":               ErrRemoteFailure,
}

// APIError is a failed API call. Message is safe to show to users.
type APIError struct {
	Status  int
	Code    string
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status=%d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the error category. Unknown codes and transport-level failures are reported
// as ErrRemoteFailure.
func (e *APIError) Unwrap() error {
	if category, ok := categories[e.Code]; ok {
		return category
	}
	return ErrRemoteFailure
}
