package pipeline

import (
	"context"
	"time"

	"github.com/fentz26/doit/internal/bookmark"
	perrors "github.com/fentz26/doit/internal/errors"
	"github.com/fentz26/doit/internal/evidence"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/report"
	"go.uber.org/zap"
)

// ErrNoBookmarkURL is recorded on bookmark jobs whose content could not be
// linked.
const ErrNoBookmarkURL = "no bookmark url resolved"

func (w *Worker) runBookmark(ctx context.Context, location string, logger *zap.Logger) (*outcome, error) {
	if location == "" {
		return nil, perrors.NewInvalidInput("missing evidence_location")
	}

	set, err := evidence.Gather(ctx, w.blobs, location)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if len(set.Captures) == 0 {
		return nil, perrors.NewNoEvidence(location)
	}
	capture := set.Captures[len(set.Captures)-1]
	logger.Info("bookmark screenshot",
		zap.String("key", capture.Key),
		zap.Bool("metadata", capture.HasMetadata))

	sess := oracle.NewSession(w.oracle, logger)
	defer sess.Sweep(ctx)

	h, err := w.upload(ctx, sess, capture.Image)
	if err != nil {
		return nil, err
	}
	parts := []oracle.Part{oracle.ImagePart(h)}
	if capture.HasMetadata {
		meta, err := w.readText(ctx, capture.Metadata)
		if err != nil {
			return nil, err
		}
		parts = append(parts, oracle.TextPart("\n"+ScreenText(meta)))
	}

	started := time.Now()
	raw, err := w.oracle.Generate(ctx, oracle.Request{
		Instruction: BookmarkInstruction,
		Parts:       parts,
		Schema:      w.schema(oracle.SchemaFor[models.BookmarkCandidate]),
		SchemaName:  "bookmark_candidate",
	})
	sess.Release(context.WithoutCancel(ctx), []oracle.Handle{h})
	if err != nil {
		return nil, perrors.NewOracle("extract bookmark", err)
	}
	logger.Info("bookmark extracted", zap.Duration("inference", time.Since(started)))

	var candidate models.BookmarkCandidate
	if err := report.Parse(raw).Decode(&candidate); err != nil {
		logger.Warn("bookmark response not decodable", zap.Error(err))
		return nil, parseFailure(raw)
	}

	res := bookmark.Resolve(ctx, candidate, w.searcher)
	logger.Info("bookmark resolved",
		zap.String("method", string(res.Method)),
		zap.String("confidence", string(res.Confidence)),
		zap.Bool("url", res.ResolvedURL != nil))

	result, err := report.Encode(res)
	if err != nil {
		return nil, perrors.NewInternal(err)
	}
	if res.ResolvedURL == nil {
		out := storeOutcome(models.JobStatusFailed, result)
		out.Error = ErrNoBookmarkURL
		return &outcome{JobOutcome: out}, nil
	}
	return &outcome{
		JobOutcome: storeOutcome(models.JobStatusComplete, result),
		evidence:   set.Blobs,
	}, nil
}
