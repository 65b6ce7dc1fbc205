package errs

import "errors"

// Доменные сентинель-ошибки для маппинга в HTTP коды в handlers.
var (
	// Not found.
	ErrSessionNotFound     = errors.New("session not found")
	ErrProjectNotFound     = errors.New("project not found")
	ErrRequestNotFound     = errors.New("join request not found")
	ErrParticipantNotFound = errors.New("participant not found")

	// Unauthorized: caller lacks the role the operation requires.
	ErrNotHost          = errors.New("caller is not the session host")
	ErrNotProjectOwner  = errors.New("caller is not the project owner")
	ErrNotProjectMember = errors.New("caller is not a member of the project")
	ErrNotRequester     = errors.New("caller did not create this join request")

	// Invalid lifecycle state for the operation.
	ErrInvalidState       = errors.New("operation not valid in current session state")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrInvitationDeclined = errors.New("participant declined the invitation")

	// Conflicts: may succeed on retry once the competing actor finishes.
	ErrActiveSessionExists = errors.New("project already has a live session")
	ErrDuplicateRequest    = errors.New("user already has an active join request")
	ErrRequestBusy         = errors.New("join request is already being processed")

	// Terminal for this request as-is.
	ErrRequestExpired = errors.New("join request expired")
	ErrSessionFull    = errors.New("session is at capacity")

	// Hosts never go through the admission protocol.
	ErrHostBypass = errors.New("host joins directly, no request needed")
)
