package session

import "errors"

var (
	ErrNotIdle        = errors.New("a recording is already in progress")
	ErrClosed         = errors.New("session closed")
	ErrLostConnection = errors.New("lost connection to transcription service")
	ErrNotConnected   = errors.New("not connected to transcription service")
)

// PermissionError means the capture device refused access.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return "microphone access denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// ConnectionError covers dial failures and losing an open connection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ServerError carries an error message reported by the service, verbatim.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }
