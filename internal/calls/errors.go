package calls

import "errors"

var (
	// ErrCallNotFound is returned when a call is not found anywhere:
	// live state, recent archive, or history.
	ErrCallNotFound = errors.New("call not found")

	// ErrMissingRecipient is returned when a summary email has no recipient
	ErrMissingRecipient = errors.New("recipient email is required")
)
