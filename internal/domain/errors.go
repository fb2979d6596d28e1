package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrActiveJobExists     = errors.New("active job exists")
	ErrProviderRejected    = errors.New("provider rejected")
	ErrInvalidTransition   = errors.New("invalid status transition")
)
