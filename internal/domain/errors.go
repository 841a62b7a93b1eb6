package domain

import "errors"

var (
	// Validation errors — caller-fixable, raised before any venue call.
	ErrInvalidRouteLength = errors.New("route length out of bounds")
	ErrInvalidLoanPlan    = errors.New("malformed flash loan plan")
	ErrZeroAmount         = errors.New("zero source amount")
	ErrInvalidExchangeID  = errors.New("invalid exchange id")
	ErrMinTargetTooHigh   = errors.New("min target amount exceeds platform ceiling")

	// Authorization errors.
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidFlashLoanCaller = errors.New("invalid flash loan caller")

	// Post-condition errors.
	ErrInsufficientTarget = errors.New("realized output below min target amount")
	ErrInsufficientBurn   = errors.New("burn amount below configured floor")
	ErrInvalidAnchor      = errors.New("route does not end in the anchor asset")
	ErrPairNotTradeable   = errors.New("anchor asset not tradeable against base asset")
	ErrInvalidValue       = errors.New("native value does not match source amount")
	ErrDeadlineExpired    = errors.New("step deadline expired")
	ErrSameSourceTarget   = errors.New("source and target assets must differ")

	// Execution-environment errors.
	ErrReentrancy          = errors.New("execution already in progress")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAllow   = errors.New("insufficient allowance")
	ErrAmountOverflow      = errors.New("amount arithmetic overflow")

	// Infrastructure errors shared by stores and caches.
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
