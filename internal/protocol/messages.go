// Package protocol defines the request and reply messages exchanged over the
// matches.* NATS subjects. All messages are JSON and carry a "type"
// discriminator so a single handler can route them.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request message types.
const (
	TypeGetMatches = "get_matches"
	TypePassMatch  = "pass_match"
	TypeViewMatch  = "view_match"
)

// Reply message types.
const (
	TypeMatches     = "matches"
	TypeAck         = "ack"
	TypeRateLimited = "rate_limited"
	TypeError       = "error"
)

// Error codes carried by ErrorMsg.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodePlaceholder = "placeholder"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// GetMatchesMsg asks for a user's ranked matches.
type GetMatchesMsg struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Refresh bool   `json:"refresh"`
}

// PassMatchMsg hides a match from future reads.
type PassMatchMsg struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	MatchID string `json:"match_id"`
}

// ViewMatchMsg marks a match as seen.
type ViewMatchMsg struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	MatchID string `json:"match_id"`
}

// MatchesMsg answers GetMatchesMsg.
type MatchesMsg struct {
	Type      string `json:"type"`
	FromCache bool   `json:"from_cache"`
	MatchSet  any    `json:"match_set"`
}

// AckMsg answers a successful mutation.
type AckMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// RateLimitedMsg is sent when recomputation quota is exhausted.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg communicates an error condition.
type ErrorMsg struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ParseRequest parses raw bytes into a typed request. It returns the message
// type, the decoded struct and any error. Requests without a user id are
// rejected, as are pass/view requests without a match id.
func ParseRequest(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg             any
		err             error
		userID, matchID string
		needsMatchID    bool
	)

	switch env.Type {
	case TypeGetMatches:
		var m GetMatchesMsg
		err = json.Unmarshal(env.Raw, &m)
		userID = m.UserID
		msg = m
	case TypePassMatch:
		var m PassMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		userID, matchID, needsMatchID = m.UserID, m.MatchID, true
		msg = m
	case TypeViewMatch:
		var m ViewMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		userID, matchID, needsMatchID = m.UserID, m.MatchID, true
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown request type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	if strings.TrimSpace(userID) == "" {
		return env.Type, nil, fmt.Errorf("protocol: %q requires user_id", env.Type)
	}
	if needsMatchID && strings.TrimSpace(matchID) == "" {
		return env.Type, nil, fmt.Errorf("protocol: %q requires match_id", env.Type)
	}
	return env.Type, msg, nil
}

// NewReply creates a JSON-encoded reply. msgType is injected into the
// payload under the "type" key.
func NewReply(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}
	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal reply: %w", err)
	}
	return out, nil
}

// ErrorReply builds an ErrorMsg reply. It never fails.
func ErrorReply(code, message string, retryable bool) []byte {
	out, err := NewReply(TypeError, ErrorMsg{Code: code, Message: message, Retryable: retryable})
	if err != nil {
		return []byte(`{"type":"error","code":"internal","message":"reply encoding failed"}`)
	}
	return out
}
