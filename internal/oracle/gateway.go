// Package oracle wraps the multimodal model that classifies evidence. The
// model is treated as an untrusted service that turns ordered text and image
// parts into one blob of text.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/doit/internal/config"
	"go.uber.org/zap"
)

// Image is an evidence image to hand to the oracle.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Handle refers to an image the oracle can read. Handles may hold remote
// resources and must be released.
type Handle struct {
	ID       string
	URI      string
	MIMEType string
}

// Part is one element of an oracle request: either text or an image handle.
type Part struct {
	Text   string
	Handle *Handle
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart returns a part referring to an uploaded image.
func ImagePart(h Handle) Part {
	return Part{Handle: &h}
}

// Request is one oracle call.
type Request struct {
	// Instruction is the fixed header that tells the oracle what to produce.
	Instruction string
	Parts       []Part
	// Schema optionally describes the expected JSON output. Providers treat it
	// as a hint; the caller still parses and validates the text.
	Schema     map[string]any
	SchemaName string
}

// Gateway is a classification oracle.
type Gateway interface {
	Name() string
	Upload(ctx context.Context, img Image) (Handle, error)
	Release(ctx context.Context, h Handle) error
	Generate(ctx context.Context, req Request) (string, error)
}

// New creates the gateway selected by the oracle config.
func New(ctx context.Context, cfg config.OracleConfig, timeout time.Duration, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle API key not configured for provider %s", cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, timeout, logger)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, timeout, logger), nil
	}
	return nil, fmt.Errorf("unknown oracle provider: %s", cfg.Provider)
}
