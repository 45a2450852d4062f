package matching

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/camila-go/networknav-sub000/internal/profile"
)

// Weights assigns each response category its contribution to the score.
type Weights map[profile.Category]float64

// DefaultWeights favours professional context over lifestyle.
var DefaultWeights = Weights{
	profile.CategoryIndustry:  1.0,
	profile.CategoryRole:      0.9,
	profile.CategoryGoals:     0.8,
	profile.CategoryValues:    0.7,
	profile.CategoryInterests: 0.6,
	profile.CategoryLifestyle: 0.4,
	profile.CategoryGeneral:   0.3,
}

// Fallback scoring constants.
const (
	fallbackBase        = 0.6  // no structured data for the candidate
	fallbackPartialBase = 0.75 // candidate answered, but nothing comparable
	fallbackSpread      = 0.2  // perturbation range [0, spread)
	fallbackCap         = 0.95
)

// Score is the Scoring Engine's verdict for one pair.
type Score struct {
	Value    float64
	Fallback bool
}

// Scorer computes pairwise compatibility. It is stateless and safe for
// concurrent use.
type Scorer struct {
	weights Weights
	catalog profile.Catalog
}

// NewScorer creates a scorer. Entries in overrides replace the matching
// DefaultWeights entries; a nil catalog means profile.DefaultCatalog.
func NewScorer(overrides Weights, catalog profile.Catalog) *Scorer {
	w := make(Weights, len(DefaultWeights))
	for k, v := range DefaultWeights {
		w[k] = v
	}
	for k, v := range overrides {
		w[k] = clamp01(v)
	}
	if catalog == nil {
		catalog = profile.DefaultCatalog
	}
	return &Scorer{weights: w, catalog: catalog}
}

// Weight returns the configured weight for category c.
func (s *Scorer) Weight(c profile.Category) float64 {
	return s.weights[c]
}

// Catalog returns the question catalog used for categorisation.
func (s *Scorer) Catalog() profile.Catalog {
	return s.catalog
}

// Score rates requester against candidate. When the candidate has no
// comparable structured data the deterministic fallback is used. A malformed
// response set yields ErrMalformedResponses; callers score such candidates
// with FallbackScore.
func (s *Scorer) Score(requester, candidate Candidate) (Score, error) {
	if requester.Responses == nil {
		return Score{}, fmt.Errorf("%w: requester %s has no responses", ErrMalformedResponses, requester.Profile.ID)
	}
	if candidate.Responses == nil || len(candidate.Responses.Answers) == 0 {
		return Score{Value: FallbackScore(requester.Profile.ID, candidate.Profile.ID, false), Fallback: true}, nil
	}
	if err := requester.Responses.Validate(); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedResponses, err)
	}
	if err := candidate.Responses.Validate(); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedResponses, err)
	}

	type acc struct {
		sum float64
		n   int
	}
	perCategory := make(map[profile.Category]*acc)

	for _, q := range sortedQuestions(requester.Responses) {
		b, ok := candidate.Responses.Answers[q]
		if !ok {
			continue
		}
		cat := s.catalog.CategoryOf(q)
		if s.weights[cat] <= 0 {
			continue
		}
		a := perCategory[cat]
		if a == nil {
			a = &acc{}
			perCategory[cat] = a
		}
		a.sum += answerOverlap(requester.Responses.Answers[q], b)
		a.n++
	}

	if len(perCategory) == 0 {
		return Score{Value: FallbackScore(requester.Profile.ID, candidate.Profile.ID, true), Fallback: true}, nil
	}

	cats := make([]profile.Category, 0, len(perCategory))
	for c := range perCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var total, norm float64
	for _, c := range cats {
		a := perCategory[c]
		w := s.weights[c]
		total += w * (a.sum / float64(a.n))
		norm += w
	}
	return Score{Value: clamp01(total / norm)}, nil
}

// FallbackScore is the bounded score used when structured data cannot be
// compared. The perturbation is a pure function of the unordered id pair so
// repeated computations agree.
func FallbackScore(a, b string, partial bool) float64 {
	base := fallbackBase
	if partial {
		base = fallbackPartialBase
	}
	return math.Min(base+fallbackSpread*pairJitter(a, b), fallbackCap)
}

// pairJitter maps an unordered id pair to [0, 1).
func pairJitter(a, b string) float64 {
	if b < a {
		a, b = b, a
	}
	h := sha256.Sum256([]byte(a + "\x00" + b))
	return float64(binary.BigEndian.Uint64(h[:8])>>11) / (1 << 53)
}

// answerOverlap returns the overlap fraction in [0,1] between two answers to
// the same question.
func answerOverlap(a, b profile.Answer) float64 {
	if a.Kind == profile.KindNumber || b.Kind == profile.KindNumber {
		if a.Kind != b.Kind {
			return 0
		}
		scale := math.Max(math.Max(math.Abs(a.Number), math.Abs(b.Number)), 1)
		return clamp01(1 - math.Abs(a.Number-b.Number)/scale)
	}
	return setOverlap(a.Values(), b.Values())
}

// setOverlap is |A∩B| / min(|A|,|B|) over de-duplicated tokens.
func setOverlap(a, b []string) float64 {
	as, bs := toSet(a), toSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for v := range as {
		if _, ok := bs[v]; ok {
			shared++
		}
	}
	return float64(shared) / float64(min(len(as), len(bs)))
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, v := range items {
		out[v] = struct{}{}
	}
	return out
}

func sortedQuestions(rs *profile.ResponseSet) []profile.QuestionID {
	qs := make([]profile.QuestionID, 0, len(rs.Answers))
	for q := range rs.Answers {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
	return qs
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
