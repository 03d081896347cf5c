package pipeline

import (
	"context"
	"time"

	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/report"
	"github.com/fentz26/doit/internal/zoneout"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

func (w *Worker) runReview(ctx context.Context, job *models.Job, logger *zap.Logger) (*outcome, error) {
	rd := job.Payload.ReviewData
	if rd.Empty() {
		return nil, perrors.NewInvalidInput("missing review_data")
	}

	input := ReviewInput(rd)
	logger.Info("review input",
		zap.Int("chars", len(input)),
		zap.Int("days", len(rd.DailySummaries)),
		zap.Int("zone_out_events", len(rd.ZoneOutEvents)))

	started := time.Now()
	raw, err := w.oracle.Generate(ctx, oracle.Request{
		Instruction: ReviewInstruction,
		Parts:       []oracle.Part{oracle.TextPart(input)},
		Schema:      w.schema(oracle.SchemaFor[report.ReviewResult]),
		SchemaName:  "weekly_review",
	})
	if err != nil {
		return nil, perrors.NewOracle("weekly review", err)
	}
	logger.Info("review generated", zap.Duration("inference", time.Since(started)), zap.Int("response_chars", len(raw)))

	parsed := report.Parse(raw)
	obj := parsed.Object()
	if obj == nil {
		logger.Warn("review response not a JSON object", zap.Error(parsed.Err))
		return nil, parseFailure(raw)
	}

	FinishReview(obj, rd, logger)

	result, err := report.Encode(obj)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	return &outcome{JobOutcome: storeOutcome(models.JobStatusComplete, result)}, nil
}

// FinishReview corrects a decoded review in place: the zone-out profile is
// reconciled against the observed events, the trend and days_active get
// defaults, and observations are capped. Other keys are left as written.
func FinishReview(obj map[string]any, rd *models.ReviewData, logger *zap.Logger) {
	proposed := report.ProfileFromValue(obj["zone_out_profile"])
	fixed := zoneout.Reconcile(proposed, rd.UserGoals.ZoneOutProfile(), rd.Events())
	if diff := cmp.Diff(zoneout.Normalize(proposed), fixed); diff != "" {
		logger.Info("zone-out profile corrected", zap.String("diff", diff))
	}
	obj["zone_out_profile"] = fixed

	summary, _ := obj["weekly_summary"].(map[string]any)
	if summary == nil {
		summary = map[string]any{}
	}
	if trend, _ := summary["trend"].(string); !report.ValidTrend(trend) {
		logger.Info("invalid trend, using stable", zap.Any("trend", summary["trend"]))
		summary["trend"] = report.TrendStable
	}
	if _, ok := summary["days_active"]; !ok {
		if days, ok := rd.ReviewPeriod["days_active"]; ok {
			summary["days_active"] = days
		} else {
			summary["days_active"] = len(rd.DailySummaries)
		}
	}
	obj["weekly_summary"] = summary

	if observations, ok := obj["observations"].([]any); ok && len(observations) > report.MaxObservations {
		obj["observations"] = observations[:report.MaxObservations]
	}
}
