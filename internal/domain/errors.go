package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoSnapshot         = errors.New("no cached snapshot")
	ErrStaleData          = errors.New("serving stale snapshot")
	ErrSequenceExhausted  = errors.New("order number sequence exhausted")
	ErrInvalidOrderNumber = errors.New("invalid order number format")
	ErrOrderNumberTaken   = errors.New("order number already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMalformedRecord    = errors.New("malformed record")
)
