package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

// handleDisconnect requires a receipt header, unlike every other command.
func (e *Engine) handleDisconnect(frame stomp.Frame) error {
	receiptID, ok := frame.Header(stomp.HeaderReceipt)
	if !ok {
		return newError("DISCONNECT must include receipt header", "DISCONNECT requires a %s header", stomp.HeaderReceipt)
	}
	e.reply(stomp.Receipt(receiptID))
	logger.InfoF("[%d] User %s disconnected", e.connID, e.username)
	e.terminate()
	return nil
}
