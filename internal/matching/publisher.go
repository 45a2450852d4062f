package matching

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/camila-go/networknav-sub000/internal/messaging"
)

// Publisher sends raw payloads to a subject. *messaging.NATSClient
// satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// RefreshEvent is published on matches.refreshed.<user_id> after a
// recomputation.
type RefreshEvent struct {
	UserID            string    `json:"user_id"`
	Count             int       `json:"count"`
	HighAffinityCount int       `json:"high_affinity_count"`
	StrategicCount    int       `json:"strategic_count"`
	AverageScore      float64   `json:"average_score"`
	Placeholder       bool      `json:"placeholder,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// PublishRefreshed announces a freshly computed set for its user.
func PublishRefreshed(pub Publisher, set *MatchSet) error {
	msg := RefreshEvent{
		UserID:            set.UserID,
		Count:             set.Metrics.Count,
		HighAffinityCount: set.Metrics.HighAffinityCount,
		StrategicCount:    set.Metrics.StrategicCount,
		AverageScore:      set.Metrics.AverageScore,
		Placeholder:       set.Placeholder,
		GeneratedAt:       set.GeneratedAt,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("matching: marshal refresh event: %w", err)
	}
	subject := messaging.SubjectMatchesRefreshed + "." + set.UserID
	if err := pub.Publish(subject, data); err != nil {
		return fmt.Errorf("matching: publish %s: %w", subject, err)
	}
	return nil
}
