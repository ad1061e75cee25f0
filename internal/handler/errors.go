package handler

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrGuestNotFound = errors.New("guest not found")
	// ErrInvalidCode is the check-in flavour of not found.
	ErrInvalidCode = errors.New("invalid code")
)
