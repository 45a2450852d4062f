package matching

import (
	"fmt"
	"sort"
	"time"

	"github.com/camila-go/networknav-sub000/internal/profile"
)

// Rank orders matches by score, highest first. Equal scores keep their
// input order.
func Rank(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// Assemble builds the view returned to callers: ranked matches minus those
// whose id is in passed, with metrics computed over what remains. The input
// slice is not modified.
func Assemble(userID string, matches []Match, passed map[string]bool, generatedAt time.Time) *MatchSet {
	visible := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Passed || passed[m.ID] {
			continue
		}
		visible = append(visible, m)
	}
	Rank(visible)

	return &MatchSet{
		UserID:      userID,
		Matches:     visible,
		Metrics:     computeMetrics(visible),
		GeneratedAt: generatedAt,
	}
}

func computeMetrics(matches []Match) QualityMetrics {
	q := QualityMetrics{Count: len(matches)}
	if len(matches) == 0 {
		return q
	}
	var sum float64
	for _, m := range matches {
		sum += m.Score
		switch m.Type {
		case TypeHighAffinity:
			q.HighAffinityCount++
		case TypeStrategic:
			q.StrategicCount++
		}
	}
	q.AverageScore = sum / float64(len(matches))
	return q
}

type demoPerson struct {
	name, role, org string
	score           float64
	commonality     Commonality
}

var demoPeople = []demoPerson{
	{"Alex Rivera", "Product Manager", "Example Labs", 0.86,
		Commonality{Category: CommonalityProfessional, Description: "Both focused on building products people love", Weight: weightRoleAdjacent}},
	{"Sam Chen", "Engineering Lead", "Sample Systems", 0.78,
		Commonality{Category: CommonalityHobby, Description: "Both enjoy hiking and photography", Weight: weightInterests}},
	{"Jordan Patel", "Founder", "Demo Ventures", 0.72,
		Commonality{Category: CommonalityValues, Description: "Both value mentorship and growth", Weight: weightValues}},
}

// PlaceholderCount is the fixed size of a placeholder set.
const PlaceholderCount = 3

// PlaceholderSet returns the synthetic result served when no candidates
// exist. Ids carry PlaceholderPrefix and matched users the "demo-user-"
// prefix, neither of which real ids (UUIDs) can produce.
func PlaceholderSet(userID string, now time.Time) *MatchSet {
	matches := make([]Match, 0, len(demoPeople))
	for i, p := range demoPeople {
		matched := profile.Profile{
			ID:             fmt.Sprintf("demo-user-%d", i+1),
			Name:           p.name,
			Role:           p.role,
			Organization:   p.org,
			IntakeComplete: true,
		}
		typ := Classify(p.score)
		matches = append(matches, Match{
			ID:                   fmt.Sprintf("%s%d", PlaceholderPrefix, i+1),
			UserID:               userID,
			MatchedUserID:        matched.ID,
			MatchedProfile:       matched,
			Type:                 typ,
			Commonalities:        []Commonality{p.commonality},
			ConversationStarters: TemplateStarters(matched, typ),
			Score:                p.score,
			GeneratedAt:          now,
		})
	}
	set := Assemble(userID, matches, nil, now)
	set.Placeholder = true
	return set
}
