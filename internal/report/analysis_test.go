package report

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activities(cats ...string) []Activity {
	out := make([]Activity, len(cats))
	for i, c := range cats {
		c := c
		out[i] = Activity{Capture: CaptureRef(fmt.Sprintf("%03d", i+1)), Category: &c}
	}
	return out
}

func TestCaptureRefAcceptsNumbers(t *testing.T) {
	var r AnalysisReport
	err := json.Unmarshal([]byte(`{"activities":[{"capture":7},{"capture":"008"},{"capture":null}]}`), &r)
	require.NoError(t, err)
	assert.Equal(t, CaptureRef("7"), r.Activities[0].Capture)
	assert.Equal(t, CaptureRef("008"), r.Activities[1].Capture)
	assert.Equal(t, CaptureRef(""), r.Activities[2].Capture)
}

func TestRecompute(t *testing.T) {
	trigger := "Switched to Instagram Reels"
	r := AnalysisReport{
		Activities: activities("aligned", "aligned", "drifting", "drifting", "drifting", "aligned"),
		Transitions: []Transition{
			{AtCapture: "003", Trigger: &trigger},
			{AtCapture: "005"}, // bogus
		},
	}
	r.Recompute()

	require.Len(t, r.Transitions, 2)
	assert.Equal(t, CaptureRef("003"), r.Transitions[0].AtCapture)
	assert.Equal(t, "aligned", *r.Transitions[0].From)
	assert.Equal(t, "drifting", *r.Transitions[0].To)
	assert.Equal(t, &trigger, r.Transitions[0].Trigger)
	assert.Equal(t, CaptureRef("006"), r.Transitions[1].AtCapture)
	assert.Nil(t, r.Transitions[1].Trigger)

	assert.Equal(t, 2.0, *r.Streaks.LongestAligned)
	assert.Equal(t, 3.0, *r.Streaks.LongestDrifting)
	assert.Equal(t, "aligned", *r.Streaks.EndedOn)

	assert.Equal(t, 6.0, *r.SessionSummary.TotalCaptures)
	assert.Equal(t, 3.0, *r.SessionSummary.AlignedCaptures)
	assert.Equal(t, 50.0, *r.SessionSummary.AlignedPct)
	assert.True(t, r.Consistent())
}

func TestRecompute_Empty(t *testing.T) {
	r := AnalysisReport{}
	r.Recompute()

	assert.Empty(t, r.Transitions)
	assert.Nil(t, r.Streaks.EndedOn)
	assert.Equal(t, 0.0, *r.SessionSummary.TotalCaptures)
	assert.Equal(t, 0.0, *r.SessionSummary.AlignedPct)
}

// For any activity sequence the recomputed transitions match the flip count.
func TestRecompute_TransitionsMatchCategoryChanges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cats := []string{CategoryAligned, CategoryDrifting}

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(40)
		seq := make([]string, n)
		for i := range seq {
			seq[i] = cats[rng.Intn(2)]
		}
		r := AnalysisReport{Activities: activities(seq...)}
		r.Recompute()

		flips := 0
		for i := 1; i < n; i++ {
			if seq[i] != seq[i-1] {
				flips++
			}
		}
		require.Len(t, r.Transitions, flips, "sequence %v", seq)
		require.True(t, r.Consistent())
	}
}

func TestConsistent(t *testing.T) {
	ended := "aligned"
	r := AnalysisReport{
		Activities: activities("aligned", "drifting"),
		Streaks:    &Streaks{EndedOn: &ended},
	}
	assert.False(t, r.Consistent(), "missing transition and wrong ended_on")
}

func TestApplyAggregates(t *testing.T) {
	p := Parse(`{
		"activities": [{"capture":"1","category":"aligned"},{"capture":"2","category":"drifting"}],
		"transitions": [],
		"updated_score": {"aligned_pct": 45},
		"feedback": "keep going",
		"extra": true
	}`)
	require.True(t, p.OK)

	var r AnalysisReport
	require.NoError(t, p.Decode(&r))
	r.Recompute()

	obj := p.Object()
	require.NoError(t, r.ApplyAggregates(obj))

	assert.Len(t, obj["transitions"], 1)
	assert.Equal(t, "keep going", obj["feedback"])
	assert.Equal(t, true, obj["extra"])
	summary := obj["session_summary"].(map[string]any)
	assert.Equal(t, 50.0, summary["drifting_pct"])
}
