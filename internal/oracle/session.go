package oracle

import (
	"context"

	"go.uber.org/zap"
)

// Session tracks the image handles uploaded during one worker invocation so
// they can be released per batch and swept when the invocation ends.
type Session struct {
	gw          Gateway
	logger      *zap.Logger
	outstanding map[string]Handle
	order       []string

	Uploaded int
	Released int
}

// NewSession starts an empty session over gw.
func NewSession(gw Gateway, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		gw:          gw,
		logger:      logger,
		outstanding: make(map[string]Handle),
	}
}

// Upload uploads an image and tracks its handle.
func (s *Session) Upload(ctx context.Context, img Image) (Handle, error) {
	h, err := s.gw.Upload(ctx, img)
	if err != nil {
		return Handle{}, err
	}
	s.Uploaded++
	if _, seen := s.outstanding[h.ID]; !seen {
		s.order = append(s.order, h.ID)
	}
	s.outstanding[h.ID] = h
	return h, nil
}

// Release frees the given handles. Failures are logged, not returned; a
// handle that failed to release stays outstanding for Sweep.
func (s *Session) Release(ctx context.Context, handles []Handle) {
	for _, h := range handles {
		if _, ok := s.outstanding[h.ID]; !ok {
			continue
		}
		if err := s.gw.Release(ctx, h); err != nil {
			s.logger.Warn("release oracle upload", zap.String("handle", h.ID), zap.Error(err))
			continue
		}
		delete(s.outstanding, h.ID)
		s.Released++
	}
}

// Sweep releases every handle still outstanding. It runs even when ctx is
// already cancelled.
func (s *Session) Sweep(ctx context.Context) {
	if len(s.outstanding) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var leaked []Handle
	for _, id := range s.order {
		if h, ok := s.outstanding[id]; ok {
			leaked = append(leaked, h)
		}
	}
	s.logger.Info("sweeping oracle uploads", zap.Int("count", len(leaked)))
	s.Release(ctx, leaked)
}

// Outstanding returns the number of handles not yet released.
func (s *Session) Outstanding() int {
	return len(s.outstanding)
}
