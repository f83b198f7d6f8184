package stomp

import "strings"

type decodeState byte

const (
	stateCommand decodeState = iota
	stateHeaders
	stateBody
)

const terminator = 0x00

// Decoder turns a byte stream into frames one byte at a time.
//
// A Decoder lives as long as its connection; partial frames survive across calls so frames may
// arrive split over any number of reads. It is not safe for concurrent use.
type Decoder struct {
	state   decodeState
	line    []byte
	command string
	headers Headers
	body    []byte
}

// NewDecoder returns a decoder waiting for a command line.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.reset()
	return d
}

func (d *Decoder) reset() {
	d.state = stateCommand
	d.line = d.line[:0]
	d.command = ""
	d.headers = Headers{}
	d.body = nil
}

// DecodeByte consumes one byte and returns a frame when b completes one.
func (d *Decoder) DecodeByte(b byte) (Frame, bool) {
	if b == terminator {
		return d.complete(), true
	}
	switch d.state {
	case stateCommand:
		d.commandByte(b)
	case stateHeaders:
		d.headerByte(b)
	case stateBody:
		d.body = append(d.body, b)
	}
	return Frame{}, false
}

// Decode feeds data to the decoder and calls fn for every completed frame. Decoding stops early
// when fn returns false; the number of bytes consumed is returned.
func (d *Decoder) Decode(data []byte, fn func(Frame) bool) int {
	for i, b := range data {
		if frame, ok := d.DecodeByte(b); ok && !fn(frame) {
			return i + 1
		}
	}
	return len(data)
}

func (d *Decoder) commandByte(b byte) {
	switch b {
	case '\n':
		d.command = strings.TrimSpace(string(d.line))
		d.line = d.line[:0]
		d.state = stateHeaders
	case '\r':
	default:
		d.line = append(d.line, b)
	}
}

func (d *Decoder) headerByte(b byte) {
	switch b {
	case '\n':
		line := string(d.line)
		d.line = d.line[:0]
		if line == "" {
			d.state = stateBody
			return
		}
		// lines without a colon or with an empty key are dropped
		if colon := strings.IndexByte(line, ':'); colon > 0 {
			key := strings.TrimSpace(line[:colon])
			d.headers[key] = strings.TrimSpace(line[colon+1:])
		}
	case '\r':
	default:
		d.line = append(d.line, b)
	}
}

// complete packages what has been accumulated. An unfinished command or header line is dropped.
func (d *Decoder) complete() Frame {
	frame := Frame{
		Command: d.command,
		Headers: d.headers,
		Body:    string(d.body),
	}
	d.reset()
	return frame
}

// Encode serializes f. It is the inverse of the decoder for well-formed frames.
func Encode(f Frame) []byte {
	return f.Encode()
}
