package chat

import (
	"errors"
)

// ErrInvalidInput is returned when the user message is blank after
// trimming. Callers recover locally with a canned "please rephrase"
// reply; it is never a hard failure.
var ErrInvalidInput = errors.New("chat: empty user message")
