package domain

import "errors"

var (
	ErrAlreadyOwned       = errors.New("product already purchased")
	ErrAlreadySubscribed  = errors.New("subscription already active")
	ErrProductNotFound    = errors.New("product not found")
	ErrContentNotFound    = errors.New("content not found")
	ErrNoCustomer         = errors.New("no subscription with a customer record")
	ErrMissingEmail       = errors.New("user email is required")
	ErrMissingPrice       = errors.New("price id is required")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMissingCorrelation = errors.New("event has no user correlation")
)

// AccessDeniedError reports a missing entitlement.
type AccessDeniedError struct {
	Reason DenialReason
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}
