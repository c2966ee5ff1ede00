package model

import "time"

// TrainJob asks the training workers to train one event.
type TrainJob struct {
	ID          string
	Event       string
	Activate    bool // activate the winner when it clears the activation score
	RequestedAt time.Time
}
