package stomp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Frame is one protocol message.
//
// A Frame handed to Encode or WriteTo must not be modified afterwards.
type Frame struct {
	Command string
	Headers Headers
	Body    string
}

// NewFrame builds a frame for a known command.
func NewFrame(command Command, headers Headers, body string) Frame {
	if headers == nil {
		headers = Headers{}
	}
	return Frame{Command: command.String(), Headers: headers, Body: body}
}

// Kind resolves the command line into the fixed command vocabulary.
func (f Frame) Kind() Command {
	return ParseCommand(f.Command)
}

// Header returns the value of key and whether the frame carried it.
func (f Frame) Header(key string) (string, bool) {
	return f.Headers.Get(key)
}

// Require returns the value of key or an error wrapping ErrMissingHeader.
func (f Frame) Require(key string) (string, error) {
	v, ok := f.Headers.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingHeader, key)
	}
	return v, nil
}

// Encode serializes the frame into its wire form.
func (f Frame) Encode() []byte {
	buf := &bytes.Buffer{}
	buf.Grow(len(f.Command) + len(f.Body) + 32*len(f.Headers) + 3)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

// String returns the wire form of the frame.
func (f Frame) String() string {
	s := &strings.Builder{}
	if _, err := f.WriteTo(s); err != nil {
		return ""
	}
	return s.String()
}

// WriteTo writes the wire form of the frame to w: the command line, one key:value line per
// header, a blank line, the body and the NUL terminator.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(s string) error {
		n, err := io.WriteString(w, s)
		total += int64(n)
		return err
	}
	if err := write(f.Command + "\n"); err != nil {
		return total, err
	}
	for _, key := range f.Headers.SortedKeys() {
		if err := write(key + ":" + f.Headers[key] + "\n"); err != nil {
			return total, err
		}
	}
	if err := write("\n"); err != nil {
		return total, err
	}
	if err := write(f.Body); err != nil {
		return total, err
	}
	if err := write("\x00"); err != nil {
		return total, err
	}
	return total, nil
}

// Connected creates the CONNECTED reply.
func Connected() Frame {
	return NewFrame(CONNECTED, Headers{HeaderVersion: ProtocolVersion}, "")
}

// Receipt creates a RECEIPT for the given receipt id.
func Receipt(receiptID string) Frame {
	return NewFrame(RECEIPT, Headers{HeaderReceiptID: receiptID}, "")
}

// Message creates one fan-out copy of a published message for a single subscriber.
func Message(messageID uint64, destination, subscriptionID, body string) Frame {
	return NewFrame(MESSAGE, Headers{
		HeaderMessageID:    fmt.Sprintf("%d", messageID),
		HeaderDestination:  destination,
		HeaderSubscription: subscriptionID,
	}, body)
}

// Error creates an ERROR frame. receiptID is echoed only when non-empty; detail becomes the body.
func Error(message, receiptID, detail string) Frame {
	headers := Headers{HeaderMessage: message}
	if receiptID != "" {
		headers[HeaderReceiptID] = receiptID
	}
	return NewFrame(ERROR, headers, detail)
}
