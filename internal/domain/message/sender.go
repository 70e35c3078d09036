// internal/domain/message/sender.go
package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sender sends templated messages through the chat session. This interface
// decouples the application logic from the WhatsApp client library.
type Sender interface {
	SendText(ctx context.Context, phone, text string) error
	// SendDocument sends a file attachment with a caption as one logical
	// operation. Implementations degrade to caption-only text (with a warning)
	// when the attachment payload is unavailable.
	SendDocument(ctx context.Context, phone, filePath, caption string) error
}

// SendError is a per-recipient send failure carrying its classification.
type SendError struct {
	Reason FailureReason
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ClassifyError maps a send failure onto a log status: an invalid recipient
// is terminal, everything else stays retry-eligible for a future cycle.
// Reason text mentioning an unregistered number counts as invalid even when
// the error was not raised as a SendError.
func ClassifyError(err error) Status {
	var se *SendError
	if errors.As(err, &se) && se.Reason == ReasonInvalid {
		return StatusInvalid
	}
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "not registered") {
		return StatusInvalid
	}
	return StatusFailed
}
