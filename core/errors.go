package core

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidEnrollment      = errors.New("invalid enrollment")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrBelowMinimumStake      = errors.New("stake amount below minimum")
	ErrLockPeriodActive       = errors.New("lock period active")
	ErrUnsupportedPair        = errors.New("unsupported currency pair")
	ErrQuoteExpired           = errors.New("quote expired")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrSecurityDenied         = errors.New("denied by security policy")

	// ErrBridgeTimeout never reaches API callers directly; the coordinator
	// compensates and marks the transaction failed with this as the reason.
	ErrBridgeTimeout = errors.New("bridge confirmation timeout")
)
