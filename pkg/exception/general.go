package exception

import "errors"

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrQueueFull       = errors.New("event queue full")
	ErrQueueClosed     = errors.New("event queue closed")
)
