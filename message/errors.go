package message

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageFailed is the application-level failure of a Sync delivery:
	// the receiver answered false. It is never a submission error.
	ErrMessageFailed = errors.New("message failed")
	ErrInvalidPolicy = errors.New("invalid policy")
)

// FailedError identifies the message whose Sync delivery failed.
type FailedError struct {
	ProducerID int
	MessageID  uint64
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("producer %d message %d: message failed", e.ProducerID, e.MessageID)
}

func (e *FailedError) Unwrap() error {
	return ErrMessageFailed
}
