package matching

import (
	"github.com/camila-go/networknav-sub000/internal/profile"
)

type answers = map[profile.QuestionID]profile.Answer

func person(id, name string) profile.Profile {
	return profile.Profile{
		ID:             id,
		Name:           name,
		Email:          id + "@example.com",
		IntakeComplete: true,
	}
}

func candidate(p profile.Profile, a answers) Candidate {
	if a == nil {
		return Candidate{Profile: p}
	}
	return Candidate{Profile: p, Responses: &profile.ResponseSet{UserID: p.ID, Answers: a}}
}

// fintechHiker is the answer set most tests use for the requester.
func fintechHiker() answers {
	return answers{
		"industry":  profile.Text("Fintech"),
		"interests": profile.List("Hiking", "Photography"),
	}
}
