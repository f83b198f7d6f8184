package stomp

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input  string
		expect Command
	}{
		{"CONNECT", CONNECT},
		{"SEND", SEND},
		{"SUBSCRIBE", SUBSCRIBE},
		{"UNSUBSCRIBE", UNSUBSCRIBE},
		{"DISCONNECT", DISCONNECT},
		{"connect", Unknown},
		{"", Unknown},
		{"ACK", Unknown},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.expect {
			t.Errorf("ParseCommand(%q): expected %v, got %v", tt.input, tt.expect, got)
		}
	}
}

func TestRequire(t *testing.T) {
	frame := NewFrame(SEND, Headers{HeaderDestination: "/a", "empty": ""}, "")

	if v, err := frame.Require(HeaderDestination); err != nil || v != "/a" {
		t.Fatalf("expected /a, got %q (%v)", v, err)
	}
	if _, err := frame.Require("empty"); err != nil {
		t.Fatalf("present but empty header must be accepted, got %v", err)
	}
	if _, err := frame.Require(HeaderReceipt); !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
}

func TestErrorFrame(t *testing.T) {
	withReceipt := Error("bad", "5", "details")
	if withReceipt.Headers[HeaderReceiptID] != "5" || withReceipt.Body != "details" {
		t.Fatalf("unexpected error frame %+v", withReceipt)
	}
	if _, ok := Error("bad", "", "").Headers[HeaderReceiptID]; ok {
		t.Fatal("receipt-id must be omitted when the offending frame had none")
	}
}
