package domain

import "errors"

var (
	ErrInvalidToken      = errors.New("invalid credential token")
	ErrMalformedEvent    = errors.New("malformed event")
	ErrUnknownConn       = errors.New("unknown connection")
	ErrAlreadyIdentified = errors.New("connection already identified")
	ErrConnClosed        = errors.New("connection closed")
	ErrQueueFull         = errors.New("send queue full")
)
