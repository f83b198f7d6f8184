package stomp

import "sort"

const (
	HeaderDestination  = "destination"
	HeaderID           = "id"
	HeaderLogin        = "login"
	HeaderMessage      = "message"
	HeaderMessageID    = "message-id"
	HeaderPasscode     = "passcode"
	HeaderReceipt      = "receipt"
	HeaderReceiptID    = "receipt-id"
	HeaderSubscription = "subscription"
	HeaderVersion      = "version"
)

// ProtocolVersion is advertised in every CONNECTED frame.
const ProtocolVersion = "1.2"

// Headers are the frame headers. Keys are unique; the last occurrence on the wire wins.
type Headers map[string]string

// Get returns the value of key and whether it was present.
func (h Headers) Get(key string) (string, bool) {
	v, ok := h[key]
	return v, ok
}

// SortedKeys returns the header keys in lexical order.
func (h Headers) SortedKeys() []string {
	var keys []string
	if n := len(h); n > 0 {
		keys = make([]string, 0, n)
		for k := range h {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	return keys
}

// Clone returns an independent copy of h.
func (h Headers) Clone() Headers {
	c := make(Headers, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}
