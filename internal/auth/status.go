// Package auth keeps the username/password table and the connection to username session bindings.
package auth

type LoginStatus int

const (
	AddedNewUser LoginStatus = iota
	LoggedIn
	WrongPassword
	AlreadyLoggedIn
	ClientAlreadyConnected
)

var statusNames = map[LoginStatus]string{
	AddedNewUser:           "ADDED_NEW_USER",
	LoggedIn:               "LOGGED_IN",
	WrongPassword:          "WRONG_PASSWORD",
	AlreadyLoggedIn:        "ALREADY_LOGGED_IN",
	ClientAlreadyConnected: "CLIENT_ALREADY_CONNECTED",
}

func (s LoginStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Success reports whether the login bound a session.
func (s LoginStatus) Success() bool {
	return s == AddedNewUser || s == LoggedIn
}
