package protocol

import "sync/atomic"

// MessageIDs hands out process-wide message identifiers. One value is drawn per publish.
type MessageIDs struct {
	last atomic.Uint64
}

// Next returns a value strictly greater than every value returned before it.
func (m *MessageIDs) Next() uint64 {
	return m.last.Add(1)
}
