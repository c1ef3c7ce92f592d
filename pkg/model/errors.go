package model

import "errors"

// Error taxonomy shared by the monitoring engine. Callers classify with errors.Is.
var (
	ErrSourceUnavailable = errors.New("price source unavailable")
	ErrMalformedResponse = errors.New("malformed price source response")
	ErrUnauthorized      = errors.New("alert belongs to another owner")
	ErrPersistence       = errors.New("persistence failure")
	ErrDeliveryFailure   = errors.New("delivery failure")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAlert      = errors.New("invalid alert")
)
