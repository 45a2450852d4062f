// Package profile defines participant profiles, their questionnaire responses,
// and the repository the matching engine reads them from. The engine treats
// everything in this package as read-only input.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Profile is a participant as seen by the matching engine.
type Profile struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Email          string `json:"email,omitempty" yaml:"email"`
	Role           string `json:"role,omitempty" yaml:"role"`
	Organization   string `json:"organization,omitempty" yaml:"organization"`
	IntakeComplete bool   `json:"intake_complete" yaml:"intake_complete"`
}

// FirstName returns the first whitespace-delimited token of the display name.
func (p Profile) FirstName() string {
	fields := strings.Fields(p.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// QuestionID identifies one questionnaire question.
type QuestionID string

// AnswerKind discriminates the Answer union.
type AnswerKind string

const (
	KindText   AnswerKind = "text"
	KindList   AnswerKind = "list"
	KindNumber AnswerKind = "number"
)

// ErrMalformedAnswer is returned by Answer.Validate.
var ErrMalformedAnswer = errors.New("profile: malformed answer")

// Answer is a single questionnaire answer. Exactly one payload field is
// meaningful, selected by Kind.
type Answer struct {
	Kind   AnswerKind `json:"kind" yaml:"kind"`
	Text   string     `json:"text,omitempty" yaml:"text"`
	List   []string   `json:"list,omitempty" yaml:"list"`
	Number float64    `json:"number,omitempty" yaml:"number"`
}

// Text builds a scalar answer.
func Text(s string) Answer { return Answer{Kind: KindText, Text: s} }

// List builds a list answer.
func List(items ...string) Answer { return Answer{Kind: KindList, List: items} }

// Number builds a numeric answer.
func Number(n float64) Answer { return Answer{Kind: KindNumber, Number: n} }

// Validate reports whether the answer carries a payload matching its kind.
func (a Answer) Validate() error {
	switch a.Kind {
	case KindText:
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("%w: empty text", ErrMalformedAnswer)
		}
	case KindList:
		if len(a.List) == 0 {
			return fmt.Errorf("%w: empty list", ErrMalformedAnswer)
		}
	case KindNumber:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedAnswer, a.Kind)
	}
	return nil
}

// Values returns the answer as normalized (trimmed, lower-cased) tokens.
// Numeric answers have no token form and return nil.
func (a Answer) Values() []string {
	switch a.Kind {
	case KindText:
		return []string{normalize(a.Text)}
	case KindList:
		out := make([]string, 0, len(a.List))
		for _, item := range a.List {
			if v := normalize(item); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResponseSet holds one profile's questionnaire answers.
type ResponseSet struct {
	UserID  string                `json:"user_id" yaml:"user_id"`
	Answers map[QuestionID]Answer `json:"answers" yaml:"answers"`
}

// Validate checks every answer in the set.
func (r *ResponseSet) Validate() error {
	for q, a := range r.Answers {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("question %s: %w", q, err)
		}
	}
	return nil
}

// Repository is the read side of the profile store.
type Repository interface {
	// GetProfile returns the profile or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// ListCompletedProfiles returns every profile with completed intake,
	// excluding the given user id.
	ListCompletedProfiles(ctx context.Context, excluding string) ([]Profile, error)
	// GetResponses returns the user's responses, or (nil, nil) when absent.
	GetResponses(ctx context.Context, userID string) (*ResponseSet, error)
}

// BatchResponseReader is implemented by repositories that can load many
// response sets in one round trip.
type BatchResponseReader interface {
	GetResponsesBatch(ctx context.Context, userIDs []string) (map[string]*ResponseSet, error)
}

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("profile: not found")
