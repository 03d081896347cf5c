package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/evidence"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/report"
	"go.uber.org/zap"
)

const maxLoggedKeys = 5

func (w *Worker) runAnalysis(ctx context.Context, job *models.Job, location string, logger *zap.Logger) (*outcome, error) {
	if location == "" {
		return nil, perrors.NewInvalidInput("missing evidence_location")
	}

	goals, err := w.goalsFor(job, logger)
	if err != nil {
		return nil, err
	}

	set, err := evidence.Gather(ctx, w.blobs, location)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	logEvidence(set, logger)
	if len(set.Captures) == 0 {
		return nil, perrors.NewNoEvidence(location)
	}

	batches, err := evidence.Plan(set, w.cfg.BatchSize)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	logger.Info("planned batches", zap.Int("captures", len(set.Captures)), zap.Int("batches", len(batches)))

	sess := oracle.NewSession(w.oracle, logger)
	defer sess.Sweep(ctx)

	userContext := UserContext(goals)
	raws := make([]string, 0, len(batches))
	for _, b := range batches {
		raw, err := w.analyzeBatch(ctx, sess, b, len(batches), userContext, logger)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}

	final := raws[0]
	if len(raws) > 1 {
		started := time.Now()
		final, err = w.oracle.Generate(ctx, oracle.Request{
			Instruction: MergeInstruction,
			Parts:       MergeParts(raws),
			Schema:      w.schema(oracle.SchemaFor[report.AnalysisReport]),
			SchemaName:  "analysis_report",
		})
		if err != nil {
			return nil, perrors.NewOracle("merge batches", err)
		}
		logger.Info("merged batches", zap.Int("batches", len(raws)), zap.Duration("inference", time.Since(started)))
	}

	result, err := w.analysisResult(final, logger)
	if err != nil {
		return nil, err
	}
	return &outcome{
		JobOutcome: storeOutcome(models.JobStatusComplete, result),
		evidence:   set.Blobs,
	}, nil
}

func (w *Worker) analyzeBatch(ctx context.Context, sess *oracle.Session, b models.Batch, total int, userContext string, logger *zap.Logger) (string, error) {
	logger = logger.With(zap.Int("batch", b.Index+1), zap.Int("of", total))
	started := time.Now()

	parts := []oracle.Part{oracle.TextPart(userContext)}
	handles := make([]oracle.Handle, 0, len(b.Captures))
	defer func() { sess.Release(context.WithoutCancel(ctx), handles) }()

	for i, c := range b.Captures {
		h, err := w.upload(ctx, sess, c.Image)
		if err != nil {
			return "", err
		}
		handles = append(handles, h)
		parts = append(parts, oracle.TextPart(CaptureHeader(b.Offset+i+1, c.Key)), oracle.ImagePart(h))

		if c.HasMetadata {
			meta, err := w.readText(ctx, c.Metadata)
			if err != nil {
				return "", err
			}
			parts = append(parts, oracle.TextPart(ScreenText(meta)))
		}
	}
	if b.SessionLog != "" {
		parts = append(parts, oracle.TextPart(SessionLogText(b.SessionLog)))
	}
	uploaded := time.Since(started)

	started = time.Now()
	raw, err := w.oracle.Generate(ctx, oracle.Request{
		Instruction: AnalysisInstruction,
		Parts:       parts,
		Schema:      w.schema(oracle.SchemaFor[report.AnalysisReport]),
		SchemaName:  "analysis_report",
	})
	if err != nil {
		return "", perrors.NewOracle(fmt.Sprintf("analyze batch %d", b.Index+1), err)
	}
	logger.Info("batch analyzed",
		zap.Int("captures", len(b.Captures)),
		zap.Duration("upload", uploaded),
		zap.Duration("inference", time.Since(started)),
		zap.Int("response_chars", len(raw)))
	return raw, nil
}

// analysisResult turns the final oracle text into the stored result. Text
// that is not JSON is kept in a raw envelope and still completes the job.
func (w *Worker) analysisResult(text string, logger *zap.Logger) (json.RawMessage, error) {
	parsed := report.Parse(text)
	if !parsed.OK {
		logger.Warn("analysis response is not JSON, storing raw text", zap.Error(parsed.Err))
		return parsed.Result()
	}

	obj := parsed.Object()
	if obj == nil {
		return parsed.Result()
	}

	var r report.AnalysisReport
	if err := parsed.Decode(&r); err != nil {
		logger.Warn("analysis report has unexpected field types", zap.Error(err))
		return parsed.Result()
	}
	if !r.Consistent() {
		logger.Warn("analysis aggregates disagree with activities",
			zap.Int("transitions", len(r.Transitions)),
			zap.Int("category_changes", r.FlipCount()))
	}
	if !w.cfg.LocalAggregates {
		return parsed.Result()
	}

	r.Recompute()
	if err := r.ApplyAggregates(obj); err != nil {
		return nil, perrors.NewInternal(err)
	}
	return report.Encode(obj)
}

// goalsFor returns the goals carried by the job, or the stored profile of its
// user when the job has none.
func (w *Worker) goalsFor(job *models.Job, logger *zap.Logger) (models.Goals, error) {
	if len(job.Payload.UserGoals) > 0 {
		return job.Payload.UserGoals, nil
	}
	if job.Payload.UserID == "" {
		return nil, nil
	}
	goals, err := w.store.GetProfile(job.Payload.UserID)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if goals == nil {
		logger.Info("no profile stored for user", zap.String("user_id", job.Payload.UserID))
	}
	return goals, nil
}

func logEvidence(set *models.EvidenceSet, logger *zap.Logger) {
	logger.Info("evidence gathered",
		zap.String("prefix", set.Prefix),
		zap.Int("captures", len(set.Captures)),
		zap.Bool("session_log", set.SessionLog != ""))
	if n := len(set.Unpaired); n > 0 {
		keys := set.Unpaired
		if n > maxLoggedKeys {
			keys = keys[:maxLoggedKeys]
		}
		logger.Warn("captures without metadata", zap.Int("count", n), zap.Strings("keys", keys))
	}
	if len(set.Duplicates) > 0 {
		logger.Warn("images sharing a capture key ignored", zap.Strings("blobs", set.Duplicates))
	}
	for _, name := range set.Skipped {
		logger.Debug("skipping unrecognized blob", zap.String("blob", name))
	}
}
