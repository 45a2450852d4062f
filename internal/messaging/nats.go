// Package messaging provides a NATS client wrapper for the matching engine.
// It handles connection lifecycle, request-reply handlers for the matches.*
// subjects and refresh notifications.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subjects served or published by the matching engine.
const (
	SubjectMatchesGet       = "matches.get"
	SubjectMatchesPass      = "matches.pass"
	SubjectMatchesView      = "matches.view"
	SubjectMatchesRefreshed = "matches.refreshed" // + .<user_id>
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	Queue         string        `mapstructure:"queue"` // queue group for request handlers
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects int           `mapstructure:"max_reconnects"` // -1 for infinite
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "networknav-matcher",
		Queue:         "matcher",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.track(subject, sub)
	return nil
}

// HandleRequests serves request-reply traffic on subject within queue group
// queue, so that several engine replicas share the load. The handler's
// return value is sent as the reply.
func (c *NATSClient) HandleRequests(subject, queue string, handler func(data []byte) []byte) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			c.logger.Warn("respond failed", zap.String("subject", subject), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}
	c.track(subject, sub)
	return nil
}

// Request sends data on subject and waits up to timeout for the reply.
func (c *NATSClient) Request(subject string, data []byte, timeout time.Duration) ([]byte, error) {
	msg, err := c.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// SubscribeRefreshed subscribes to the matches.refreshed.<userID> subject and
// passes the raw message data to the handler.
func (c *NATSClient) SubscribeRefreshed(userID string, handler func(data []byte)) error {
	return c.Subscribe(SubjectMatchesRefreshed+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeRefreshed unsubscribes from matches.refreshed.<userID>.
func (c *NATSClient) UnsubscribeRefreshed(userID string) error {
	return c.unsubscribe(SubjectMatchesRefreshed + "." + userID)
}

// Connected reports whether the underlying connection is up.
func (c *NATSClient) Connected() bool {
	return c.conn.IsConnected()
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain failed", zap.Error(err))
	}

	c.logger.Info("client closed")
}

func (c *NATSClient) track(subject string, sub *nats.Subscription) {
	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
