package report

import (
	"bytes"
	"encoding/json"
	"math"
)

// Activity categories.
const (
	CategoryAligned  = "aligned"
	CategoryDrifting = "drifting"
)

// CaptureRef is a capture label. The oracle writes it as a string or a number.
type CaptureRef string

// UnmarshalJSON accepts a JSON string or number.
func (c *CaptureRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CaptureRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = CaptureRef(n.String())
	return nil
}

// Activity is the classification of one capture.
type Activity struct {
	Capture      CaptureRef `json:"capture,omitempty"`
	App          *string    `json:"app,omitempty"`
	AppName      *string    `json:"app_name,omitempty"`
	Category     *string    `json:"category,omitempty" jsonschema:"enum=aligned,enum=drifting"`
	Description  *string    `json:"description,omitempty"`
	ZoneOutMatch *string    `json:"zone_out_match,omitempty"`
}

// CategoryOf returns the activity's category, or "" when absent.
func (a Activity) CategoryOf() string {
	if a.Category == nil {
		return ""
	}
	return *a.Category
}

// Transition is a change of category between adjacent captures.
type Transition struct {
	AtCapture CaptureRef `json:"at_capture,omitempty"`
	From      *string    `json:"from,omitempty"`
	To        *string    `json:"to,omitempty"`
	Trigger   *string    `json:"trigger,omitempty"`
}

// Streaks are the longest runs of each category.
type Streaks struct {
	LongestAligned  *float64 `json:"longest_aligned,omitempty"`
	LongestDrifting *float64 `json:"longest_drifting,omitempty"`
	EndedOn         *string  `json:"ended_on,omitempty"`
}

// SessionSummary counts captures per category.
type SessionSummary struct {
	TotalCaptures    *float64 `json:"total_captures,omitempty"`
	AlignedCaptures  *float64 `json:"aligned_captures,omitempty"`
	DriftingCaptures *float64 `json:"drifting_captures,omitempty"`
	AlignedPct       *float64 `json:"aligned_pct,omitempty"`
	DriftingPct      *float64 `json:"drifting_pct,omitempty"`
}

// Score is the user's running aligned/drifting split.
type Score struct {
	AlignedPct  *float64 `json:"aligned_pct,omitempty"`
	DriftingPct *float64 `json:"drifting_pct,omitempty"`
}

// AnalysisReport is the document produced for an analysis job. Every field
// is optional because the oracle may omit any of them.
type AnalysisReport struct {
	Activities     []Activity      `json:"activities,omitempty"`
	Transitions    []Transition    `json:"transitions,omitempty"`
	Streaks        *Streaks        `json:"streaks,omitempty"`
	SessionSummary *SessionSummary `json:"session_summary,omitempty"`
	UpdatedScore   *Score          `json:"updated_score,omitempty"`
	Feedback       *string         `json:"feedback,omitempty"`
}

// FlipCount returns how many adjacent activities differ in category.
func (r *AnalysisReport) FlipCount() int {
	n := 0
	for i := 1; i < len(r.Activities); i++ {
		if r.Activities[i].CategoryOf() != r.Activities[i-1].CategoryOf() {
			n++
		}
	}
	return n
}

// Consistent reports whether the transitions and the ended_on streak agree
// with the activity list.
func (r *AnalysisReport) Consistent() bool {
	if len(r.Transitions) != r.FlipCount() {
		return false
	}
	if len(r.Activities) > 0 && r.Streaks != nil && r.Streaks.EndedOn != nil {
		return *r.Streaks.EndedOn == r.Activities[len(r.Activities)-1].CategoryOf()
	}
	return true
}

// Recompute rebuilds transitions, streaks and the session summary from the
// activity list. Oracle triggers are kept for transitions it placed at the
// same capture. The updated score and feedback are left alone.
func (r *AnalysisReport) Recompute() {
	triggers := make(map[CaptureRef]*string)
	for _, t := range r.Transitions {
		if t.Trigger != nil && t.AtCapture != "" {
			triggers[t.AtCapture] = t.Trigger
		}
	}

	transitions := make([]Transition, 0)
	var aligned, drifting, run, longestAligned, longestDrifting int
	for i, a := range r.Activities {
		cat := a.CategoryOf()
		switch cat {
		case CategoryAligned:
			aligned++
		case CategoryDrifting:
			drifting++
		}

		if i > 0 && cat != r.Activities[i-1].CategoryOf() {
			from, to := r.Activities[i-1].CategoryOf(), cat
			transitions = append(transitions, Transition{
				AtCapture: a.Capture,
				From:      &from,
				To:        &to,
				Trigger:   triggers[a.Capture],
			})
			run = 0
		}
		run++
		if cat == CategoryAligned && run > longestAligned {
			longestAligned = run
		}
		if cat == CategoryDrifting && run > longestDrifting {
			longestDrifting = run
		}
	}
	r.Transitions = transitions

	streaks := &Streaks{
		LongestAligned:  num(longestAligned),
		LongestDrifting: num(longestDrifting),
	}
	if n := len(r.Activities); n > 0 {
		ended := r.Activities[n-1].CategoryOf()
		streaks.EndedOn = &ended
	}
	r.Streaks = streaks

	total := len(r.Activities)
	summary := &SessionSummary{
		TotalCaptures:    num(total),
		AlignedCaptures:  num(aligned),
		DriftingCaptures: num(drifting),
		AlignedPct:       num(0),
		DriftingPct:      num(0),
	}
	if total > 0 {
		summary.AlignedPct = pct(aligned, total)
		summary.DriftingPct = pct(drifting, total)
	}
	r.SessionSummary = summary
}

// ApplyAggregates overwrites the aggregate fields of a decoded report object
// with the values held in r, keeping every other key as the oracle wrote it.
func (r *AnalysisReport) ApplyAggregates(obj map[string]any) error {
	for key, v := range map[string]any{
		"transitions":     r.Transitions,
		"streaks":         r.Streaks,
		"session_summary": r.SessionSummary,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return err
		}
		obj[key] = decoded
	}
	return nil
}

func num(n int) *float64 {
	f := float64(n)
	return &f
}

func pct(part, total int) *float64 {
	f := math.Round(float64(part) * 100 / float64(total))
	return &f
}
