package billing

import "errors"

var (
	// ErrInvalidBillingDay indicates a billing day outside [1,28].
	ErrInvalidBillingDay = errors.New("billing: billing day must be between 1 and 28")
	// ErrNegativeFee indicates a negative monthly fee.
	ErrNegativeFee = errors.New("billing: monthly fee must not be negative")
	// ErrNegativeAmount indicates a negative cash or credit amount.
	ErrNegativeAmount = errors.New("billing: amounts must not be negative")
	// ErrEmptyPayment indicates neither cash nor credit was supplied.
	ErrEmptyPayment = errors.New("billing: payment requires a cash amount or credit to apply")
	// ErrCreditExceedsAvailable indicates requested credit usage above the available credit balance.
	ErrCreditExceedsAvailable = errors.New("billing: credit to apply exceeds available credit")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("billing: not found")
	// ErrProfileNotActive indicates operations on a suspended or closed profile.
	ErrProfileNotActive = errors.New("billing: profile is not active")
	// ErrAlreadyOnboarded indicates the client already owns a billing profile.
	ErrAlreadyOnboarded = errors.New("billing: client already has a billing profile")
	// ErrAlreadyBilled indicates the monthly charge for the period exists.
	ErrAlreadyBilled = errors.New("billing: period already billed")
	// ErrChargeConflict indicates a charge changed state between snapshot and apply.
	ErrChargeConflict = errors.New("billing: charge no longer pending")
)
