package match

import "errors"

// Errors returned across the engine boundary. Callers match them with
// errors.Is; the transport maps them to status codes.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPairNotFound     = errors.New("pair not found")
	ErrNotPairMember    = errors.New("not part of this pair")
	ErrNoRequest        = errors.New("no request")
	ErrHandshakePending = errors.New("match awaiting accept or decline")
	ErrInvalidRetryMode = errors.New("invalid retry mode")
)
