package matching

import (
	"strings"
	"time"

	"github.com/camila-go/networknav-sub000/internal/profile"
	"github.com/google/uuid"
)

// MatchType classifies a pairing by score.
type MatchType string

const (
	TypeHighAffinity MatchType = "high-affinity"
	TypeStrategic    MatchType = "strategic"
)

// CommonalityCategory is the kind of overlap a Commonality describes.
type CommonalityCategory string

const (
	CommonalityProfessional CommonalityCategory = "professional"
	CommonalityHobby        CommonalityCategory = "hobby"
	CommonalityLifestyle    CommonalityCategory = "lifestyle"
	CommonalityValues       CommonalityCategory = "values"
)

// Commonality is one weighted reason two people might connect.
type Commonality struct {
	Category    CommonalityCategory `json:"category"`
	Description string              `json:"description"`
	Weight      float64             `json:"weight"`
}

// MaxConversationStarters bounds Match.ConversationStarters.
const MaxConversationStarters = 2

// Match is the engine's output for one (requester, candidate) pair.
// Viewed and Passed are owned by downstream collaborators.
type Match struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	MatchedUserID        string          `json:"matched_user_id"`
	MatchedProfile       profile.Profile `json:"matched_profile"`
	Type                 MatchType       `json:"type"`
	Commonalities        []Commonality   `json:"commonalities"`
	ConversationStarters []string        `json:"conversation_starters"`
	Score                float64         `json:"score"`
	GeneratedAt          time.Time       `json:"generated_at"`
	Viewed               bool            `json:"viewed"`
	Passed               bool            `json:"passed"`
}

// QualityMetrics aggregates a filtered MatchSet.
type QualityMetrics struct {
	Count             int     `json:"count"`
	AverageScore      float64 `json:"average_score"`
	HighAffinityCount int     `json:"high_affinity_count"`
	StrategicCount    int     `json:"strategic_count"`
}

// MatchSet is the ranked result for one user.
type MatchSet struct {
	UserID      string         `json:"user_id"`
	Matches     []Match        `json:"matches"`
	Metrics     QualityMetrics `json:"metrics"`
	GeneratedAt time.Time      `json:"generated_at"`
	Placeholder bool           `json:"placeholder,omitempty"`
}

// Candidate pairs a profile with its responses. Responses is nil when the
// candidate never completed the questionnaire.
type Candidate struct {
	Profile   profile.Profile
	Responses *profile.ResponseSet
}

var matchNamespace = uuid.MustParse("6f1c5a0e-8d4b-4c1e-9a57-2b1d3f6e7a90")

// MatchID derives a stable id for the (userID, matchedUserID) pair so that a
// recomputed match keeps the identity of the one it replaces.
func MatchID(userID, matchedUserID string) string {
	return uuid.NewSHA1(matchNamespace, []byte(userID+"\x00"+matchedUserID)).String()
}

// PlaceholderPrefix marks synthetic cold-start matches.
const PlaceholderPrefix = "demo-match-"

// IsPlaceholderID reports whether id belongs to a synthetic match.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}
