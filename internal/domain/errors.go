package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrRateLimited   = errors.New("rate limited")

	// Validation errors. Callers wrap these with the offending values.
	ErrLengthMismatch      = errors.New("outcome vector length mismatch")
	ErrInvalidOutcomeIndex = errors.New("invalid outcome index")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroPayouts         = errors.New("payout vector sums to zero")
	ErrNegativePayout      = errors.New("payout numerator is negative")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Temporal / state errors.
	ErrEpochAlreadyResolved     = errors.New("epoch already resolved")
	ErrEpochNotResolved         = errors.New("epoch not resolved")
	ErrEpochNotFinished         = errors.New("epoch duration has not elapsed")
	ErrEpochFinishedNotResolved = errors.New("epoch finished but not resolved yet")
	ErrMarketExpired            = errors.New("market expired")
	ErrRolloverAfterExpiration  = errors.New("rollover not allowed on the final epoch")
	ErrNothingToRedeem          = errors.New("nothing to redeem")
	ErrNotInitialized           = errors.New("market not initialized")

	// Math errors.
	ErrExpOverflow   = errors.New("exp argument exceeds configured limit")
	ErrNonPositiveLn = errors.New("ln argument must be positive")

	// Reentrancy guard: every state-mutating entry point refuses nested calls
	// into the same market instance.
	ErrReentrancy = errors.New("reentrant call")
)
