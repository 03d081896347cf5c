package report

import "github.com/fentz26/doit/internal/models"

// Weekly trends.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// MaxObservations caps the observations kept on a review result.
const MaxObservations = 4

// ValidTrend reports whether s is a known trend.
func ValidTrend(s string) bool {
	switch s {
	case TrendImproving, TrendDeclining, TrendStable:
		return true
	}
	return false
}

// WeeklySummary is the headline of a weekly review.
type WeeklySummary struct {
	TotalActiveMinutes *float64 `json:"total_active_minutes,omitempty"`
	DaysActive         *float64 `json:"days_active,omitempty"`
	AlignedPct         *float64 `json:"aligned_pct,omitempty"`
	DriftingPct        *float64 `json:"drifting_pct,omitempty"`
	Trend              *string  `json:"trend,omitempty" jsonschema:"enum=improving,enum=declining,enum=stable"`
	TrendDetail        *string  `json:"trend_detail,omitempty"`
}

// ReviewResult is the document produced for a review job.
type ReviewResult struct {
	WeeklySummary  *WeeklySummary         `json:"weekly_summary,omitempty"`
	ZoneOutProfile *models.ZoneOutProfile `json:"zone_out_profile,omitempty"`
	Observations   []string               `json:"observations,omitempty"`
	Feedback       *string                `json:"feedback,omitempty"`
}

// ProfileFromValue reads a zone-out profile out of a decoded JSON value.
// Missing or malformed lists are empty.
func ProfileFromValue(v any) models.ZoneOutProfile {
	m, _ := v.(map[string]any)
	g := models.Goals(m)
	return models.ZoneOutProfile{
		Content:    g.StringList("content_zone_outs"),
		Behavior:   g.StringList("behavior_zone_outs"),
		Emerging:   g.StringList("emerging"),
		Persistent: g.StringList("persistent"),
		Resolved:   g.StringList("resolved"),
	}
}
