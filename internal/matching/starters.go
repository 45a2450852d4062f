package matching

import (
	"fmt"
	"strings"

	"github.com/camila-go/networknav-sub000/internal/profile"
)

// TemplateStarters builds up to two opening lines for a match from the
// candidate's first name, role, organization and the match type. It never
// fails and is the baseline the enrichment tier may replace.
func TemplateStarters(candidate profile.Profile, matchType MatchType) []string {
	name := candidate.FirstName()
	if name == "" {
		name = "there"
	}
	role := strings.TrimSpace(candidate.Role)
	org := strings.TrimSpace(candidate.Organization)

	var opener string
	switch {
	case role != "" && org != "":
		opener = fmt.Sprintf("Hi %s! I'd love to hear what a typical week looks like for a %s at %s.", name, role, org)
	case role != "":
		opener = fmt.Sprintf("Hi %s! What got you into working as a %s?", name, role)
	case org != "":
		opener = fmt.Sprintf("Hi %s! What are you focused on at %s these days?", name, org)
	default:
		opener = fmt.Sprintf("Hi %s! What are you working on right now that excites you most?", name)
	}

	var followUp string
	if matchType == TypeHighAffinity {
		followUp = "It looks like we have a lot in common. Want to compare notes over coffee?"
	} else {
		followUp = "I think our different perspectives could complement each other. What's a challenge you're tackling?"
	}

	return []string{opener, followUp}
}

// limitStarters trims, drops blanks and caps lines at MaxConversationStarters.
func limitStarters(lines []string) []string {
	out := make([]string, 0, MaxConversationStarters)
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == MaxConversationStarters {
			break
		}
	}
	return out
}
