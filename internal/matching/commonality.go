package matching

import (
	"fmt"
	"strings"

	"github.com/camila-go/networknav-sub000/internal/profile"
)

// Fixed rule weights. They do not scale with overlap size.
const (
	weightIndustry     = 0.9
	weightRoleAdjacent = 0.8
	weightInterests    = 0.7
	weightValues       = 0.75
	weightLifestyle    = 0.5
	weightSameOrg      = 0.7
	weightSameRole     = 0.65
	weightGeneric      = 0.6
)

// ExtractCommonalities lists why requester and candidate might connect.
// Rules run in a fixed order and append independently; when none fires a
// single generic professional commonality is returned, so the result is
// never empty.
func ExtractCommonalities(catalog profile.Catalog, requester, candidate Candidate, fallback bool) []Commonality {
	var out []Commonality

	if requester.Responses != nil && candidate.Responses != nil {
		shared := sharedByCategory(catalog, requester.Responses, candidate.Responses)

		if v := shared[profile.CategoryIndustry]; len(v) > 0 {
			out = append(out, Commonality{
				Category:    CommonalityProfessional,
				Description: fmt.Sprintf("Both work in %s", v[0]),
				Weight:      weightIndustry,
			})
		}
		roleAdjacent := append(append([]string{}, shared[profile.CategoryRole]...), shared[profile.CategoryGoals]...)
		if len(roleAdjacent) > 0 {
			out = append(out, Commonality{
				Category:    CommonalityProfessional,
				Description: fmt.Sprintf("Shared professional focus on %s", joinFirstTwo(roleAdjacent)),
				Weight:      weightRoleAdjacent,
			})
		}
		if v := shared[profile.CategoryInterests]; len(v) > 0 {
			out = append(out, Commonality{
				Category:    CommonalityHobby,
				Description: fmt.Sprintf("Both enjoy %s", joinFirstTwo(v)),
				Weight:      weightInterests,
			})
		}
		if v := shared[profile.CategoryValues]; len(v) > 0 {
			out = append(out, Commonality{
				Category:    CommonalityValues,
				Description: fmt.Sprintf("Both value %s", joinFirstTwo(v)),
				Weight:      weightValues,
			})
		}
		if v := shared[profile.CategoryLifestyle]; len(v) > 0 {
			out = append(out, Commonality{
				Category:    CommonalityLifestyle,
				Description: fmt.Sprintf("Similar approach to %s", joinFirstTwo(v)),
				Weight:      weightLifestyle,
			})
		}
	}

	if fallback {
		r, c := requester.Profile, candidate.Profile
		if sameText(r.Organization, c.Organization) {
			out = append(out, Commonality{
				Category:    CommonalityProfessional,
				Description: fmt.Sprintf("Both at %s", strings.TrimSpace(c.Organization)),
				Weight:      weightSameOrg,
			})
		}
		if sameText(r.Role, c.Role) {
			out = append(out, Commonality{
				Category:    CommonalityProfessional,
				Description: fmt.Sprintf("Both work as %s", strings.TrimSpace(c.Role)),
				Weight:      weightSameRole,
			})
		}
	}

	if len(out) == 0 {
		out = append(out, GenericCommonality())
	}
	return out
}

// GenericCommonality is the substitute used when no specific overlap exists.
func GenericCommonality() Commonality {
	return Commonality{
		Category:    CommonalityProfessional,
		Description: "Complementary professional backgrounds worth exploring",
		Weight:      weightGeneric,
	}
}

// sharedByCategory returns, per category, the answer tokens both sets have
// in common, in requester order with requester casing. Numeric answers are
// not listed.
func sharedByCategory(catalog profile.Catalog, a, b *profile.ResponseSet) map[profile.Category][]string {
	out := make(map[profile.Category][]string)
	seen := make(map[profile.Category]map[string]struct{})

	for _, q := range sortedQuestions(a) {
		other, ok := b.Answers[q]
		if !ok {
			continue
		}
		mine := a.Answers[q]
		if mine.Kind == profile.KindNumber || other.Kind == profile.KindNumber {
			continue
		}
		theirs := toSet(other.Values())
		cat := catalog.CategoryOf(q)
		if seen[cat] == nil {
			seen[cat] = make(map[string]struct{})
		}
		for _, raw := range displayValues(mine) {
			key := strings.ToLower(strings.TrimSpace(raw))
			if _, ok := theirs[key]; !ok {
				continue
			}
			if _, dup := seen[cat][key]; dup {
				continue
			}
			seen[cat][key] = struct{}{}
			out[cat] = append(out[cat], strings.TrimSpace(raw))
		}
	}
	return out
}

func displayValues(a profile.Answer) []string {
	switch a.Kind {
	case profile.KindText:
		return []string{a.Text}
	case profile.KindList:
		return a.List
	}
	return nil
}

func joinFirstTwo(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return items[0] + " and " + items[1]
}

func sameText(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
