package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fentz26/doit/internal/models"
)

// AnalysisInstruction heads every analysis batch call.
const AnalysisInstruction = `You review a phone session for DoIt, an app that helps people spend their phone time on what matters to them. The input is a run of screen captures in the order they were taken. Each capture may come with the text of its UI elements as read by the Android accessibility service (TXT is the visible label, ID the resource id, CLS the widget class). A user profile with goals, a target split and a running score may also be given.

Decide what the user was really doing on each capture and label it "aligned" when it serves the user's goals or "drifting" when it does not.

Labelling guide:
- aligned: learning or research in the user's areas of interest, reading or writing toward a goal, note taking, coding, productivity and study tools.
- drifting: feed scrolling on social apps, entertainment video, games, browsing that has nothing to do with the goals.
- launchers, app stores, settings, loading or error screens and ads count as drifting.
- judge by what is on screen, not by the app alone. A physics lecture on YouTube is aligned for someone interested in science; a stream of sports shorts is not.
- general news is drifting unless it is about one of the user's interests.

Reply with a single JSON object and nothing else. No markdown, no code fences. Shape:
{
  "activities": [
    {"capture": "001", "app": "com.example.app", "app_name": "Example", "category": "aligned", "description": "what the user was doing", "zone_out_match": "pattern_name"}
  ],
  "transitions": [
    {"at_capture": "004", "from": "aligned", "to": "drifting", "trigger": "what caused the switch"}
  ],
  "streaks": {"longest_aligned": 3, "longest_drifting": 5, "ended_on": "drifting"},
  "session_summary": {"total_captures": 8, "aligned_captures": 3, "drifting_captures": 5, "aligned_pct": 38, "drifting_pct": 62},
  "updated_score": {"aligned_pct": 47, "drifting_pct": 53},
  "feedback": "a short, specific note to the user"
}

Field rules:
- activities: one entry per capture, in capture order.
- transitions: walk the activities in order and add an entry every time the category differs from the previous capture. The number of transitions must equal the number of category changes.
- streaks: the longest consecutive run of each category; ended_on is the category of the last capture.
- session_summary: counts and percentages of captures only. Do not estimate time.
- updated_score: when a current score is given, weight this session at 30% and the current score at 70%; otherwise use this session's split.
- feedback: mention the apps and content you saw. Capture numbers are fine, times and durations are not.
- zone_out_match: only when the user listed content zone-outs and the capture's visible content matches one of them. Leave the field out otherwise.
`

// MergeInstruction heads the call that combines several batch reports.
const MergeInstruction = `The reports below were produced for consecutive batches of captures from one phone session. Combine them into one report with the same JSON shape.

- Concatenate the activities of all batches in capture order and keep every field of every activity unchanged, zone_out_match included.
- Rebuild transitions from the combined activity list, including a change between the last capture of one batch and the first capture of the next.
- Recount streaks and session_summary over the combined list.
- Recompute updated_score from the combined totals.
- Write one feedback message for the whole session, without times or durations.

Reply with the JSON object only. No markdown, no code fences.

Batch reports follow.
`

// BookmarkInstruction heads the bookmark extraction call.
const BookmarkInstruction = `You extract bookmark details for DoIt. The input is one phone screenshot and, when available, the text of its UI elements from the Android accessibility service (TXT is the visible label, ID the resource id, CLS the widget class).

Work out which piece of content the user is looking at and describe it so a link can be built for it later. When a feed shows several posts, pick the one that is most prominent: the largest or most centred on screen.

Reply with a single JSON object and nothing else. No markdown, no code fences:
{
  "platform": "youtube",
  "title": "title exactly as shown",
  "channel": "creator or channel display name",
  "handle": "@author_handle",
  "video_id": "11 character YouTube id",
  "url": "full URL if one is visible",
  "description": "one line about the content",
  "content_type": "video"
}

Field rules:
- platform: lowercase, one of youtube, instagram, x, reddit, web, other.
- title: copy it character for character. For a post on X use roughly the first 100 characters of its text.
- channel: the display name of the author or channel when visible.
- handle: the author's @username. On X it sits next to the display name at the top of the post; mentions inside the post text are not the author.
- video_id: look through resource ids, the address bar and share sheets for an 11 character YouTube id.
- url: only a complete URL you can actually read. Never guess or assemble one.
- content_type: one of video, short, live, playlist, post, story, article, other.
- any field you cannot determine is null. Every field must be present.
`

// ReviewInstruction heads the weekly review call.
const ReviewInstruction = `You write the weekly review for a DoIt user. DoIt measures whether phone time is aligned with the user's own goals or drifting away from them; it is not a study tracker.

The input has the review period, the user's goals with the zone-out patterns tracked so far, one summary per day, and the zone-out events seen this week.

Produce:
1. weekly_summary: total active minutes (the sum of the daily totals), days with data, the aligned and drifting split weighted by time over the whole week, and a trend of improving, declining or stable measured against the user's target, with a sentence explaining it.
2. zone_out_profile: compare this week's events with the previously tracked patterns.
   - persistent: tracked before and seen this week.
   - emerging: not tracked before and seen this week.
   - resolved: tracked before and not seen this week.
   - content_zone_outs and behavior_zone_outs: every current pattern of that type, persistent plus emerging, never resolved. An emerging pattern goes in the list named by its event type.
3. observations: two to four concrete patterns, such as time-of-day habits or apps that pull the user away.
4. feedback: a short personal paragraph about goal alignment.

Reply with a single JSON object and nothing else. No markdown, no code fences:
{
  "weekly_summary": {"total_active_minutes": 380.0, "days_active": 5, "aligned_pct": 41, "drifting_pct": 59, "trend": "stable", "trend_detail": "one sentence"},
  "zone_out_profile": {"content_zone_outs": [], "behavior_zone_outs": [], "emerging": [], "persistent": [], "resolved": []},
  "observations": ["...", "..."],
  "feedback": "..."
}

Pattern names are lowercase_snake_case. Do not use the word "study".
`

// UserContext renders the profile section that opens every analysis batch.
func UserContext(goals models.Goals) string {
	if len(goals) == 0 {
		return "\n## User profile data\nNo profile is available for this user. Label captures with the general aligned and drifting guide."
	}

	var b strings.Builder
	b.WriteString("\n## User profile data\n")
	b.WriteString(indentJSON(goals))

	if zoneOuts := goals.StringList("content_zone_outs"); len(zoneOuts) > 0 {
		fmt.Fprintf(&b, "\n\n## Content zone-outs\nThe user asked to be told about these content patterns: %s. "+
			"When a capture's content matches one of them, set \"zone_out_match\" on that capture's activity to the pattern name.",
			strings.Join(zoneOuts, ", "))
	}
	return b.String()
}

// CaptureHeader labels one capture with its position in the whole session.
func CaptureHeader(n int, key string) string {
	return fmt.Sprintf("\n--- Screen capture %d (%s) ---", n, key)
}

// ScreenText introduces the accessibility text of a capture.
func ScreenText(meta string) string {
	return "UI elements on this screen:\n" + meta
}

// SessionLogText introduces the session log.
func SessionLogText(log string) string {
	return "\n--- Session activity log ---\n" + log
}

// ReviewInput renders the review data sections.
func ReviewInput(rd *models.ReviewData) string {
	summaries := any(rd.DailySummaries)
	if rd.DailySummaries == nil {
		summaries = []any{}
	}
	events := any(rd.ZoneOutEvents)
	if rd.ZoneOutEvents == nil {
		events = []any{}
	}
	period := any(rd.ReviewPeriod)
	if rd.ReviewPeriod == nil {
		period = map[string]any{}
	}
	goals := any(rd.UserGoals)
	if rd.UserGoals == nil {
		goals = map[string]any{}
	}

	return fmt.Sprintf("\n## Review Period\n%s\n\n## User Goals\n%s\n\n## Daily Usage Summaries\n%s\n\n## Zone-Out Events This Week\n%s\n",
		indentJSON(period), indentJSON(goals), indentJSON(summaries), indentJSON(events))
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
