package models

// Zone-out event types.
const (
	ZoneOutContent  = "content"
	ZoneOutBehavior = "behavior"
)

// ZoneOutEvent is a pattern observed during a review period.
type ZoneOutEvent struct {
	Pattern string `json:"pattern"`
	Type    string `json:"type"`
}

// ZoneOutProfile holds the five pattern lists of a user's zone-out profile.
type ZoneOutProfile struct {
	Content    []string `json:"content_zone_outs"`
	Behavior   []string `json:"behavior_zone_outs"`
	Emerging   []string `json:"emerging"`
	Persistent []string `json:"persistent"`
	Resolved   []string `json:"resolved"`
}

// ReviewData is the input of a weekly review job.
type ReviewData struct {
	UserGoals      Goals            `json:"user_goals,omitempty"`
	DailySummaries []map[string]any `json:"daily_summaries,omitempty"`
	ZoneOutEvents  []map[string]any `json:"zone_out_events,omitempty"`
	ReviewPeriod   map[string]any   `json:"review_period,omitempty"`
}

// Empty reports whether r carries nothing to review.
func (r *ReviewData) Empty() bool {
	return r == nil ||
		(len(r.UserGoals) == 0 && len(r.DailySummaries) == 0 && len(r.ZoneOutEvents) == 0 && len(r.ReviewPeriod) == 0)
}

// Events extracts the typed zone-out events. Entries without a string pattern
// are skipped; the type is kept as given.
func (r *ReviewData) Events() []ZoneOutEvent {
	if r == nil {
		return nil
	}
	events := make([]ZoneOutEvent, 0, len(r.ZoneOutEvents))
	for _, raw := range r.ZoneOutEvents {
		pattern, _ := raw["pattern"].(string)
		if pattern == "" {
			continue
		}
		etype, _ := raw["type"].(string)
		events = append(events, ZoneOutEvent{Pattern: pattern, Type: etype})
	}
	return events
}
