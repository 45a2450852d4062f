package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerValidate(t *testing.T) {
	cases := []struct {
		name    string
		answer  Answer
		wantErr bool
	}{
		{"text", Text("fintech"), false},
		{"blank text", Text("   "), true},
		{"list", List("go", "rust"), false},
		{"empty list", List(), true},
		{"number zero", Number(0), false},
		{"unknown kind", Answer{Kind: "blob"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.answer.Validate()
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedAnswer), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnswerValues_Normalized(t *testing.T) {
	assert.Equal(t, []string{"fintech"}, Text("  FinTech ").Values())
	assert.Equal(t, []string{"hiking", "chess"}, List("Hiking", " ", "Chess").Values())
	assert.Nil(t, Number(3).Values())
}

func TestProfileFirstName(t *testing.T) {
	assert.Equal(t, "Ada", Profile{Name: "Ada Lovelace"}.FirstName())
	assert.Equal(t, "", Profile{Name: "  "}.FirstName())
}

func TestCatalogCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryIndustry, DefaultCatalog.CategoryOf("industry"))
	assert.Equal(t, CategoryInterests, DefaultCatalog.CategoryOf("hobbies"))
	assert.Equal(t, CategoryGeneral, DefaultCatalog.CategoryOf("favorite_color"))
}

func TestMemoryRepository_ListCompletedExcludesRequester(t *testing.T) {
	repo := NewMemoryRepository()
	repo.PutProfile(Profile{ID: "u1", Name: "Ann", IntakeComplete: true})
	repo.PutProfile(Profile{ID: "u2", Name: "Ben", IntakeComplete: true})
	repo.PutProfile(Profile{ID: "u3", Name: "Cy", IntakeComplete: false})
	repo.PutProfile(Profile{ID: "u4", Name: "Di", IntakeComplete: true})

	got, err := repo.ListCompletedProfiles(context.Background(), "u1")
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"u2", "u4"}, ids)
}

func TestMemoryRepository_GetProfileNotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_ResponsesAbsentIsNil(t *testing.T) {
	repo := NewMemoryRepository()
	rs, err := repo.GetResponses(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rs)
}

func TestMemoryRepository_LoadFixtures(t *testing.T) {
	fixture := []byte(`
profiles:
  - id: alice
    name: Alice Chen
    email: alice@example.com
    role: Engineer
    organization: Acme
    intake_complete: true
  - id: bob
    name: Bob Ortiz
    intake_complete: true
responses:
  - user_id: alice
    answers:
      industry: {kind: text, text: fintech}
      interests: {kind: list, list: [hiking, chess]}
      years_in_field: {kind: number, number: 7}
`)
	repo := NewMemoryRepository()
	require.NoError(t, repo.loadFixtureBytes(fixture))

	assert.Equal(t, []string{"alice", "bob"}, repo.IDs())

	rs, err := repo.GetResponses(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, rs)
	assert.Equal(t, KindList, rs.Answers["interests"].Kind)
	assert.Equal(t, []string{"hiking", "chess"}, rs.Answers["interests"].List)
	assert.Equal(t, 7.0, rs.Answers["years_in_field"].Number)
}

func TestMemoryRepository_LoadFixturesRejectsMalformed(t *testing.T) {
	fixture := []byte(`
responses:
  - user_id: alice
    answers:
      industry: {kind: text, text: ""}
`)
	repo := NewMemoryRepository()
	err := repo.loadFixtureBytes(fixture)
	assert.ErrorIs(t, err, ErrMalformedAnswer)
}
