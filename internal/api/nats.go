package api

import (
	"context"
	"time"

	"github.com/camila-go/networknav-sub000/internal/messaging"
	"github.com/camila-go/networknav-sub000/internal/protocol"
	"go.uber.org/zap"
)

// RequestServer is implemented by messaging.NATSClient.
type RequestServer interface {
	HandleRequests(subject, queue string, handler func(data []byte) []byte) error
}

var _ RequestServer = (*messaging.NATSClient)(nil)

// Requests answers matches.* request-reply messages.
type Requests struct {
	svc     MatchService
	timeout time.Duration
	logger  *zap.Logger
}

// NewRequests creates a request handler. timeout bounds each request.
func NewRequests(svc MatchService, timeout time.Duration, logger *zap.Logger) *Requests {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Requests{svc: svc, timeout: timeout, logger: logger.Named("requests")}
}

// Register subscribes the handler to every matches.* request subject
// within queue.
func (q *Requests) Register(server RequestServer, queue string) error {
	for _, subject := range []string{
		messaging.SubjectMatchesGet,
		messaging.SubjectMatchesPass,
		messaging.SubjectMatchesView,
	} {
		if err := server.HandleRequests(subject, queue, q.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle decodes one request and returns the encoded reply.
func (q *Requests) Handle(data []byte) []byte {
	msgType, msg, err := protocol.ParseRequest(data)
	if err != nil {
		q.logger.Debug("bad request", zap.String("type", msgType), zap.Error(err))
		return protocol.ErrorReply(protocol.CodeBadRequest, err.Error(), false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	var (
		reply  []byte
		opErr  error
		userID string
	)
	switch m := msg.(type) {
	case protocol.GetMatchesMsg:
		userID = m.UserID
		set, fromCache, err := q.svc.GetMatches(ctx, m.UserID, m.Refresh)
		if err != nil {
			opErr = err
			break
		}
		reply, opErr = protocol.NewReply(protocol.TypeMatches, protocol.MatchesMsg{FromCache: fromCache, MatchSet: set})
	case protocol.PassMatchMsg:
		userID = m.UserID
		if opErr = q.svc.PassMatch(ctx, m.UserID, m.MatchID); opErr == nil {
			reply, opErr = protocol.NewReply(protocol.TypeAck, protocol.AckMsg{MatchID: m.MatchID})
		}
	case protocol.ViewMatchMsg:
		userID = m.UserID
		if opErr = q.svc.MarkViewed(ctx, m.UserID, m.MatchID); opErr == nil {
			reply, opErr = protocol.NewReply(protocol.TypeAck, protocol.AckMsg{MatchID: m.MatchID})
		}
	}

	if opErr != nil {
		failed := replyForError(opErr)
		q.logger.Debug("request failed",
			zap.String("type", msgType),
			zap.String("user_id", userID),
			zap.Int("status", failed.status),
			zap.Error(opErr),
		)
		return failed.body
	}
	return reply
}
