package race

import "errors"

// ErrUnknownEvent is returned when an event code cannot be resolved.
var ErrUnknownEvent = errors.New("unknown event")
