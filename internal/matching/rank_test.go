package matching

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Threshold(t *testing.T) {
	assert.Equal(t, TypeStrategic, Classify(0.8))
	assert.Equal(t, TypeHighAffinity, Classify(0.8000001))
	assert.Equal(t, TypeStrategic, Classify(0))
	assert.Equal(t, TypeHighAffinity, Classify(1))
}

func TestRank_StableDescending(t *testing.T) {
	ms := []Match{
		{ID: "a", Score: 0.5},
		{ID: "b", Score: 0.9},
		{ID: "c", Score: 0.5},
		{ID: "d", Score: 0.7},
	}
	Rank(ms)

	var ids []string
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestAssemble_FiltersPassedAndComputesMetrics(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ms := []Match{
		{ID: "a", Score: 0.9, Type: TypeHighAffinity},
		{ID: "b", Score: 0.6, Type: TypeStrategic},
		{ID: "c", Score: 0.7, Type: TypeStrategic, Passed: true},
		{ID: "d", Score: 0.85, Type: TypeHighAffinity},
	}

	set := Assemble("u1", ms, map[string]bool{"d": true}, now)

	require.Len(t, set.Matches, 2)
	assert.Equal(t, "a", set.Matches[0].ID)
	assert.Equal(t, "b", set.Matches[1].ID)
	assert.Equal(t, QualityMetrics{Count: 2, AverageScore: 0.75, HighAffinityCount: 1, StrategicCount: 1}, set.Metrics)
	assert.Equal(t, now, set.GeneratedAt)
	assert.Len(t, ms, 4, "input is not modified")
}

func TestAssemble_Empty(t *testing.T) {
	set := Assemble("u1", nil, nil, time.Now())
	assert.NotNil(t, set.Matches)
	assert.Equal(t, QualityMetrics{}, set.Metrics)
}

func TestPlaceholderSet(t *testing.T) {
	set := PlaceholderSet("u1", time.Now())

	assert.True(t, set.Placeholder)
	require.Len(t, set.Matches, PlaceholderCount)
	for i, m := range set.Matches {
		assert.True(t, IsPlaceholderID(m.ID), m.ID)
		assert.True(t, strings.HasPrefix(m.MatchedUserID, "demo-user-"))
		assert.Equal(t, "u1", m.UserID)
		assert.NotEmpty(t, m.Commonalities)
		assert.LessOrEqual(t, len(m.ConversationStarters), MaxConversationStarters)
		assert.Equal(t, Classify(m.Score), m.Type)
		if i > 0 {
			assert.GreaterOrEqual(t, set.Matches[i-1].Score, m.Score)
		}
	}
	assert.Equal(t, PlaceholderCount, set.Metrics.Count)
	assert.False(t, IsPlaceholderID(MatchID("u1", "demo-user-1")))
}

func TestTemplateStarters(t *testing.T) {
	p := person("c1", "Maya Lopez")
	p.Role, p.Organization = "Data Scientist", "Acme"

	lines := TemplateStarters(p, TypeHighAffinity)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Maya")
	assert.Contains(t, lines[0], "Data Scientist at Acme")
	assert.Contains(t, lines[1], "in common")

	lines = TemplateStarters(person("c2", ""), TypeStrategic)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Hi there!"))
	assert.Contains(t, lines[1], "perspectives")
}

func TestLimitStarters(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, limitStarters([]string{" one ", "", "two", "three"}))
	assert.Empty(t, limitStarters([]string{"  ", ""}))
}

func TestMatchID_StableAndDirectional(t *testing.T) {
	assert.Equal(t, MatchID("a", "b"), MatchID("a", "b"))
	assert.NotEqual(t, MatchID("a", "b"), MatchID("b", "a"))
}
