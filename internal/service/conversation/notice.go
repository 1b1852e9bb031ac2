package conversation

import (
	"context"
	"errors"
	"strings"

	"assistchat/internal/service/agent"
)

// Notice turns a turn error into the inline message shown in place of a reply.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyMessage):
		return "Please enter a message."
	case errors.Is(err, agent.ErrAuth):
		return "The assistant service rejected the configured credentials. Check the API key."
	case errors.Is(err, agent.ErrNotFound):
		return "The assistant or conversation could not be found. Check the agent id or start a new conversation."
	case errors.Is(err, agent.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The assistant did not answer in time. Please try again."
	case errors.Is(err, agent.ErrRunFailed):
		return "The assistant failed to answer: " + detail(err, agent.ErrRunFailed)
	case errors.Is(err, agent.ErrUnsupportedAction):
		return "The assistant requested an action this client does not support."
	case errors.Is(err, agent.ErrUnrecognizedStatus):
		return "The assistant run ended with an unrecognized status: " + detail(err, agent.ErrUnrecognizedStatus)
	case errors.Is(err, agent.ErrNoResponse):
		return "The run completed but no reply was found."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, agent.ErrTransport):
		return "Could not reach the assistant service. Please try again."
	default:
		return "Something went wrong: " + err.Error()
	}
}

// Kind is a short label for err, used in metrics and the SSE error event.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, agent.ErrAuth):
		return "auth"
	case errors.Is(err, agent.ErrNotFound):
		return "not_found"
	case errors.Is(err, agent.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, agent.ErrRunFailed):
		return "run_failed"
	case errors.Is(err, agent.ErrUnsupportedAction):
		return "unsupported_action"
	case errors.Is(err, agent.ErrUnrecognizedStatus):
		return "unrecognized_status"
	case errors.Is(err, agent.ErrNoResponse):
		return "no_response"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, agent.ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

// detail returns the text that follows the sentinel in a wrapped error message.
func detail(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}
