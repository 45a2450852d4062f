package matching

// HighAffinityThreshold is the fixed boundary between the two match types.
// A score must be strictly greater to be high-affinity.
const HighAffinityThreshold = 0.8

// Classify maps a score to its MatchType.
func Classify(score float64) MatchType {
	if score > HighAffinityThreshold {
		return TypeHighAffinity
	}
	return TypeStrategic
}
