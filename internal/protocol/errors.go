package protocol

import (
	"errors"
	"fmt"
)

// protocolError becomes the message header and body of an ERROR frame. message is
// a fixed string and doubles as the metrics label.
type protocolError struct {
	message string
	detail  string
}

func (e *protocolError) Error() string {
	return e.message + ": " + e.detail
}

func newError(message, format string, args ...any) error {
	return &protocolError{message: message, detail: fmt.Sprintf(format, args...)}
}

func asProtocolError(err error) *protocolError {
	var pe *protocolError
	if errors.As(err, &pe) {
		return pe
	}
	return &protocolError{message: "Internal error", detail: err.Error()}
}
