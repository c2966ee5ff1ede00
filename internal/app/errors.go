package service

import "errors"

var (
	ErrNotStarted   = errors.New("service not started")
	ErrQueueFull    = errors.New("training queue is full")
	ErrPending      = errors.New("training already pending for event")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownEvent = errors.New("unknown event")
)
