package domain

import "errors"

// Validation failures raised by the market core. None of them leave side
// effects behind; a rejected proposal can be corrected and resubmitted.
var (
	ErrDomain           = errors.New("value outside pricing domain")
	ErrProofInvalid     = errors.New("proof does not match commitment")
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrQuorumNotMet     = errors.New("oracle quorum not met")
	ErrState            = errors.New("operation invalid in current market state")
	ErrMalformed        = errors.New("malformed encoding")
)

// Infrastructure errors raised outside the core.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("stale market version")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)
