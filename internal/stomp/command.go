// Package stomp implements the frame model and the byte level codec of the broker's STOMP dialect.
package stomp

// Command is the decoded form of a frame's command line.
type Command byte

// Commands understood or emitted by the broker.
const (
	Unknown     Command = iota
	CONNECT             // client requests a session
	CONNECTED           // session accepted
	SEND                // publish to a destination
	SUBSCRIBE           // bind a subscription id to a destination
	UNSUBSCRIBE         // release a subscription id
	DISCONNECT          // graceful client shutdown
	MESSAGE             // fan-out copy of a published message
	RECEIPT             // acknowledgement of a receipt header
	ERROR               // fatal protocol error
)

// CommandMap maps each Command to its wire representation.
var CommandMap = map[Command]string{
	CONNECT:     "CONNECT",
	CONNECTED:   "CONNECTED",
	SEND:        "SEND",
	SUBSCRIBE:   "SUBSCRIBE",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	DISCONNECT:  "DISCONNECT",
	MESSAGE:     "MESSAGE",
	RECEIPT:     "RECEIPT",
	ERROR:       "ERROR",
}

var commandLookup = func() map[string]Command {
	m := make(map[string]Command, len(CommandMap))
	for c, s := range CommandMap {
		m[s] = c
	}
	return m
}()

// String returns the wire representation of the command.
func (c Command) String() string {
	if s, ok := CommandMap[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseCommand resolves a command line. Anything outside the vocabulary is Unknown.
func ParseCommand(s string) Command {
	if c, ok := commandLookup[s]; ok {
		return c
	}
	return Unknown
}
