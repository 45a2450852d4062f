package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/camila-go/networknav-sub000/internal/matching"
	"github.com/camila-go/networknav-sub000/internal/protocol"
)

// errorReply is a service error mapped for both transports.
type errorReply struct {
	status     int
	body       []byte
	retryAfter int // seconds, set for rate limiting only
}

// replyForError maps a service error to an HTTP status and the protocol
// reply shared by both transports.
func replyForError(err error) errorReply {
	var rl *matching.RateLimitedError
	if errors.As(err, &rl) {
		secs := rl.RetrySeconds()
		body, encErr := protocol.NewReply(protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: secs})
		if encErr != nil {
			return errorReply{status: http.StatusInternalServerError, body: protocol.ErrorReply(protocol.CodeInternal, "reply encoding failed", false)}
		}
		return errorReply{status: http.StatusTooManyRequests, body: body, retryAfter: secs}
	}

	switch {
	case errors.Is(err, matching.ErrMatchNotFound):
		return errorReply{status: http.StatusNotFound, body: protocol.ErrorReply(protocol.CodeNotFound, "match not found", false)}
	case errors.Is(err, matching.ErrPlaceholderMatch):
		return errorReply{status: http.StatusConflict, body: protocol.ErrorReply(protocol.CodePlaceholder, "placeholder matches cannot be modified", false)}
	case errors.Is(err, matching.ErrRepositoryUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return errorReply{status: http.StatusServiceUnavailable, body: protocol.ErrorReply(protocol.CodeUnavailable, "matching temporarily unavailable", true)}
	}
	return errorReply{status: http.StatusInternalServerError, body: protocol.ErrorReply(protocol.CodeInternal, "internal error", false)}
}
