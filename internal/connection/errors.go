package connection

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
)

// IsNetClosedError reports whether err means the connection was already closed.
func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

// HandleReadError logs a transport read failure at a level matching its cause.
func HandleReadError(connID int64, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%d] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%d] Reading timeout", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%d] Connection closed by server", connID)
	default:
		logger.ErrorF("[%d] Error occured while reading frame, details: %v", connID, err)
	}
}
