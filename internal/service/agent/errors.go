package agent

import "errors"

// Error kinds surfaced by a conversation turn. Callers wrap them with
// fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrAuth means the service credential is missing, invalid or expired.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound means a referenced agent, thread or run does not exist remotely.
	ErrNotFound = errors.New("not found")
	// ErrTransport covers network failures and unexpected service responses.
	ErrTransport = errors.New("transport failure")

	ErrTimeout            = errors.New("run did not finish in time")
	ErrRunFailed          = errors.New("run failed")
	ErrUnsupportedAction  = errors.New("run requires an unsupported action")
	ErrUnrecognizedStatus = errors.New("run ended with unrecognized status")
	ErrNoResponse         = errors.New("no assistant response for run")
)
