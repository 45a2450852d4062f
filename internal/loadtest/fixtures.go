package loadtest

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/camila-go/networknav-sub000/internal/profile"
	"gopkg.in/yaml.v3"
)

var (
	industries = []string{"Fintech", "Healthcare", "Climate", "Education", "Retail", "Media"}
	roles      = []string{"Engineer", "Product Manager", "Designer", "Data Scientist", "Founder", "Investor"}
	orgs       = []string{"Acme", "Globex", "Initech", "Umbrella", "Hooli", "Stark"}
	interests  = []string{"Hiking", "Photography", "Chess", "Cooking", "Running", "Jazz", "Climbing", "Reading"}
	goals      = []string{"Hiring", "Mentorship", "Fundraising", "Partnerships", "Learning"}
	values     = []string{"Curiosity", "Impact", "Craft", "Community", "Honesty"}
	first      = []string{"Alex", "Sam", "Jordan", "Maya", "Priya", "Chen", "Lena", "Omar", "Rita", "Theo"}
	last       = []string{"Rivera", "Chen", "Patel", "Lopez", "Novak", "Kim", "Okafor", "Quinn"}
)

// UserID is the id GenerateFixtures gives the i-th user.
func UserID(i int) string {
	return fmt.Sprintf("lt-user-%05d", i)
}

// GenerateFixtures builds n profiles with completed questionnaires. The
// same seed always yields the same population.
func GenerateFixtures(n int, seed uint64) profile.Fixtures {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	fx := profile.Fixtures{
		Profiles:  make([]profile.Profile, 0, n),
		Responses: make([]profile.ResponseSet, 0, n),
	}
	for i := 0; i < n; i++ {
		id := UserID(i)
		fx.Profiles = append(fx.Profiles, profile.Profile{
			ID:             id,
			Name:           pick(rng, first) + " " + pick(rng, last),
			Email:          id + "@loadtest.example",
			Role:           pick(rng, roles),
			Organization:   pick(rng, orgs),
			IntakeComplete: true,
		})
		fx.Responses = append(fx.Responses, profile.ResponseSet{
			UserID: id,
			Answers: map[profile.QuestionID]profile.Answer{
				"industry":       profile.Text(pick(rng, industries)),
				"role":           profile.Text(pick(rng, roles)),
				"interests":      profile.List(sample(rng, interests, 3)...),
				"goals":          profile.List(sample(rng, goals, 2)...),
				"values":         profile.List(sample(rng, values, 2)...),
				"years_in_field": profile.Number(float64(1 + rng.IntN(20))),
			},
		})
	}
	return fx
}

// WriteFixtures writes fx as YAML to path.
func WriteFixtures(path string, fx profile.Fixtures) error {
	data, err := yaml.Marshal(fx)
	if err != nil {
		return fmt.Errorf("marshal fixtures: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.IntN(len(items))]
}

func sample(rng *rand.Rand, items []string, k int) []string {
	perm := rng.Perm(len(items))
	if k > len(items) {
		k = len(items)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = items[perm[i]]
	}
	return out
}
