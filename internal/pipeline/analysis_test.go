package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleBatchReport = "```json\n" + `{
  "activities": [
    {"capture": "001", "category": "aligned"},
    {"capture": "002", "category": "aligned"},
    {"capture": "003", "category": "drifting"}
  ],
  "transitions": [{"at_capture": "003", "from": "aligned", "to": "drifting", "trigger": "opened reels"}],
  "feedback": "ok"
}` + "\n```"

func TestAnalysis_SingleBatch(t *testing.T) {
	o := &scriptedOracle{responses: []string{singleBatchReport}}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s1/"
	f.putCaptures(t, prefix, 3, true)
	f.put(t, prefix+"session.log", "10:00 opened notes")
	f.put(t, prefix+"notes.bin", "unrelated")

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{
		EvidenceLocation: prefix,
		UserGoals:        models.Goals{"interests": []any{"writing"}},
	})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusComplete, got.Status)
	assert.Empty(t, got.Error)
	assert.NotNil(t, got.CompletedAt)

	var result map[string]any
	require.NoError(t, json.Unmarshal(got.Result, &result))
	assert.Equal(t, "ok", result["feedback"])
	assert.Len(t, result["activities"], 3)

	require.Len(t, o.requests, 1)
	req := o.requests[0]
	assert.Equal(t, AnalysisInstruction, req.Instruction)
	assert.Nil(t, req.Schema)

	parts := partTexts(req)
	require.Len(t, parts, 11)
	assert.Contains(t, parts[0], "## User profile data")
	assert.Contains(t, parts[0], `"writing"`)
	assert.Equal(t, "\n--- Screen capture 1 (001) ---", parts[1])
	assert.Equal(t, "<image mem://"+prefix+"001.webp>", parts[2])
	assert.Equal(t, "UI elements on this screen:\nTXT: screen 001", parts[3])
	assert.Equal(t, "\n--- Screen capture 3 (003) ---", parts[7])
	assert.Equal(t, "\n--- Session activity log ---\n10:00 opened notes", parts[10])

	assert.Len(t, o.released, 3)
	assert.Empty(t, f.listed(t, prefix), "evidence should be deleted after success")

	depth, _ := f.store.QueueDepth()
	assert.Equal(t, 1, depth, "the scheduler acks, not the worker")
}

func TestAnalysis_MergesBatchesInOrder(t *testing.T) {
	activities := func(from, to int) string {
		var items []string
		for i := from; i <= to; i++ {
			items = append(items, fmt.Sprintf(`{"capture": "%03d", "category": "aligned"}`, i))
		}
		return `{"activities": [` + strings.Join(items, ", ") + `]}`
	}
	batch1 := activities(1, 7)
	batch2 := activities(8, 12)
	merged := activities(1, 12)

	o := &scriptedOracle{responses: []string{batch1, batch2, merged}}
	f := newFixture(t, o, Config{BatchSize: 7}, nil)

	prefix := "uploads/u1/s2/"
	f.putCaptures(t, prefix, 12, false)
	f.put(t, prefix+"session.log", "log")

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	require.Len(t, o.requests, 3)

	first := partTexts(o.requests[0])
	second := partTexts(o.requests[1])
	assert.Len(t, first, 1+7*2+1, "context, 7 captures, session log")
	assert.Len(t, second, 1+5*2, "context and 5 captures, no session log")
	assert.Contains(t, first[0], "No profile is available")
	assert.Equal(t, "\n--- Screen capture 8 (008) ---", second[1])
	for _, p := range second {
		assert.NotContains(t, p, "Session activity log")
	}

	merge := o.requests[2]
	assert.Equal(t, MergeInstruction, merge.Instruction)
	assert.Equal(t, []string{
		"\n=== BATCH 1 ===\n" + batch1 + "\n",
		"\n=== BATCH 2 ===\n" + batch2 + "\n",
	}, partTexts(merge))

	// Each batch's uploads are released before the next batch is built.
	assert.Len(t, o.released, 12)
	assert.Equal(t, "files/1", o.released[0])
	assert.Equal(t, "files/8", o.released[7])

	var result struct {
		Activities []map[string]any `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(f.job(t, job.ID).Result, &result))
	require.Len(t, result.Activities, 12)
	assert.Equal(t, "001", result.Activities[0]["capture"])
	assert.Equal(t, "012", result.Activities[11]["capture"])
}

func TestAnalysis_UnparseableResponseCompletesWithEnvelope(t *testing.T) {
	o := &scriptedOracle{responses: []string{"Sorry, I cannot help with that."}}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s3/"
	f.putCaptures(t, prefix, 2, true)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusComplete, got.Status)
	assert.JSONEq(t, `{"raw": "Sorry, I cannot help with that."}`, string(got.Result))
	assert.Empty(t, f.listed(t, prefix))
}

func TestAnalysis_NoEvidence(t *testing.T) {
	o := &scriptedOracle{}
	f := newFixture(t, o, Config{}, nil)
	f.put(t, "uploads/u1/empty/readme.md", "nothing to see")

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: "uploads/u1/empty"})
	err := f.worker.Handle(context.Background(), *item)
	assert.True(t, perrors.Is(err, perrors.ErrNoEvidence), "got %v", err)

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "no screenshots found at uploads/u1/empty", got.Error)
	assert.Empty(t, o.requests)
	assert.Len(t, f.listed(t, "uploads/u1/empty/"), 1)
}

func TestAnalysis_OracleFailureKeepsEvidence(t *testing.T) {
	o := &scriptedOracle{genErr: errOracleDown}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s4/"
	f.putCaptures(t, prefix, 2, true)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	err := f.worker.Handle(context.Background(), *item)
	assert.True(t, perrors.Is(err, perrors.ErrOracleFailure), "got %v", err)

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "oracle unavailable")
	assert.Len(t, f.listed(t, prefix), 4)
	assert.Len(t, o.released, 2, "uploads are released even when the call fails")
}

func TestAnalysis_UploadFailure(t *testing.T) {
	o := &scriptedOracle{uploadErr: errOracleDown}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s5/"
	f.putCaptures(t, prefix, 1, false)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	err := f.worker.Handle(context.Background(), *item)
	assert.True(t, perrors.Is(err, perrors.ErrOracleFailure))
	assert.Equal(t, models.JobStatusFailed, f.job(t, job.ID).Status)
	assert.Empty(t, o.requests)
}

func TestAnalysis_CompleteJobIsNotRerun(t *testing.T) {
	o := &scriptedOracle{responses: []string{`{"activities": []}`}}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s6/"
	f.putCaptures(t, prefix, 1, false)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.NoError(t, f.worker.Handle(context.Background(), *item))
	first := f.job(t, job.ID)

	// Redelivery after the evidence is gone must not fail the job.
	require.NoError(t, f.worker.Handle(context.Background(), *item))
	again := f.job(t, job.ID)

	assert.Len(t, o.requests, 1)
	assert.Equal(t, models.JobStatusComplete, again.Status)
	assert.Equal(t, string(first.Result), string(again.Result))
}

func TestAnalysis_FailedJobCanRerun(t *testing.T) {
	o := &scriptedOracle{genErr: errOracleDown}
	f := newFixture(t, o, Config{}, nil)

	prefix := "uploads/u1/s7/"
	f.putCaptures(t, prefix, 1, false)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.Error(t, f.worker.Handle(context.Background(), *item))

	o.genErr = nil
	o.responses = []string{"", `{"feedback": "second try"}`}
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	got := f.job(t, job.ID)
	assert.Equal(t, models.JobStatusComplete, got.Status)
	assert.Empty(t, got.Error)
	assert.JSONEq(t, `{"feedback": "second try"}`, string(got.Result))
}

func TestAnalysis_UsesStoredProfile(t *testing.T) {
	o := &scriptedOracle{}
	f := newFixture(t, o, Config{StructuredOutput: true}, nil)

	require.NoError(t, f.store.PutProfile("u9", models.Goals{
		"interests":         []any{"astronomy"},
		"content_zone_outs": `["rage_bait", "celebrity_gossip"]`,
	}))
	prefix := "uploads/u9/s1/"
	f.putCaptures(t, prefix, 1, false)

	_, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix, UserID: "u9"})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	require.Len(t, o.requests, 1)
	userContext := o.requests[0].Parts[0].Text
	assert.Contains(t, userContext, `"astronomy"`)
	assert.Contains(t, userContext, "## Content zone-outs")
	assert.Contains(t, userContext, "rage_bait, celebrity_gossip")
	assert.NotNil(t, o.requests[0].Schema)
	assert.Equal(t, "analysis_report", o.requests[0].SchemaName)
}

func TestAnalysis_LocalAggregates(t *testing.T) {
	response := `{
	  "activities": [
	    {"capture": "001", "category": "aligned"},
	    {"capture": "002", "category": "drifting"},
	    {"capture": "003", "category": "aligned"}
	  ],
	  "transitions": [{"at_capture": "002", "from": "aligned", "to": "drifting", "trigger": "opened a game"}],
	  "streaks": {"longest_aligned": 2, "longest_drifting": 1, "ended_on": "drifting"},
	  "updated_score": {"aligned_pct": 50, "drifting_pct": 50},
	  "extra": "kept"
	}`
	o := &scriptedOracle{responses: []string{response}}
	f := newFixture(t, o, Config{LocalAggregates: true}, nil)

	prefix := "uploads/u1/s8/"
	f.putCaptures(t, prefix, 3, false)

	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: prefix})
	require.NoError(t, f.worker.Handle(context.Background(), *item))

	var result struct {
		Transitions []map[string]any `json:"transitions"`
		Streaks     map[string]any   `json:"streaks"`
		Summary     map[string]any   `json:"session_summary"`
		Score       map[string]any   `json:"updated_score"`
		Extra       string           `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(f.job(t, job.ID).Result, &result))

	require.Len(t, result.Transitions, 2)
	assert.Equal(t, "opened a game", result.Transitions[0]["trigger"])
	assert.Equal(t, "003", result.Transitions[1]["at_capture"])
	assert.Equal(t, "aligned", result.Streaks["ended_on"])
	assert.Equal(t, float64(1), result.Streaks["longest_aligned"])
	assert.Equal(t, float64(3), result.Summary["total_captures"])
	assert.Equal(t, float64(67), result.Summary["aligned_pct"])
	assert.Equal(t, float64(50), result.Score["aligned_pct"])
	assert.Equal(t, "kept", result.Extra)
}

func TestHandle_MalformedWorkRequest(t *testing.T) {
	f := newFixture(t, &scriptedOracle{}, Config{}, nil)
	job, item := f.createQueued(t, models.JobTypeAnalysis, models.JobPayload{EvidenceLocation: "a/"})

	item.Body = []byte(`not json`)
	err := f.worker.Handle(context.Background(), *item)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidInput))
	assert.Equal(t, models.JobStatusFailed, f.job(t, job.ID).Status)
}

func TestRun_Validation(t *testing.T) {
	f := newFixture(t, &scriptedOracle{}, Config{}, nil)
	job, _ := f.createQueued(t, models.JobTypeReview, models.JobPayload{ReviewData: reviewData()})

	err := f.worker.Run(context.Background(), models.JobTypeAnalysis, models.WorkRequest{})
	assert.True(t, perrors.Is(err, perrors.ErrInvalidInput))

	err = f.worker.Run(context.Background(), models.JobTypeAnalysis, models.WorkRequest{JobID: "missing"})
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))

	err = f.worker.Run(context.Background(), models.JobTypeAnalysis, models.WorkRequest{JobID: job.ID})
	assert.True(t, perrors.Is(err, perrors.ErrInvalidInput))
	assert.Equal(t, models.JobStatusQueued, f.job(t, job.ID).Status, "a type mismatch is not written to the job")
}
