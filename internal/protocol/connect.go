package protocol

import (
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/stomp"
)

var loginFailures = map[auth.LoginStatus]string{
	auth.ClientAlreadyConnected: "Client already connected",
	auth.AlreadyLoggedIn:        "User already logged in from another connection",
	auth.WrongPassword:          "Wrong password",
}

func (e *Engine) handleConnect(frame stomp.Frame) error {
	login, hasLogin := frame.Header(stomp.HeaderLogin)
	passcode, hasPasscode := frame.Header(stomp.HeaderPasscode)
	if !hasLogin || !hasPasscode {
		return newError("Missing login or passcode header", "CONNECT requires both %s and %s", stomp.HeaderLogin, stomp.HeaderPasscode)
	}

	status, err := e.deps.Auth.Login(e.connID, login, passcode)
	if err != nil {
		return newError("Login failed", "%v", err)
	}
	e.deps.Metrics.Login(status.String())

	if !status.Success() {
		return newError(loginFailures[status], "Login of %s rejected: %s", login, status)
	}

	e.username = login
	e.state = Authenticated
	logger.InfoF("[%d] User %s connected (%s)", e.connID, login, status)

	e.reply(stomp.Connected())
	e.receipt(frame)
	return nil
}
