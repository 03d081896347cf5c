package oracle

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Gemini is a Gateway backed by the Gemini API. Images go through the Files
// API and are referenced by URI.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGemini creates a Gemini gateway.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, logger *zap.Logger) (*Gemini, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.Named("gemini"),
	}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string { return "gemini" }

// Upload stores the image with the Files API.
func (g *Gemini) Upload(ctx context.Context, img Image) (Handle, error) {
	file, err := g.client.Files.Upload(ctx, bytes.NewReader(img.Data), &genai.UploadFileConfig{
		MIMEType:    img.MIMEType,
		DisplayName: img.Name,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("upload %s: %w", img.Name, err)
	}
	g.logger.Debug("uploaded image", zap.String("file", file.Name), zap.Int("bytes", len(img.Data)))
	return Handle{ID: file.Name, URI: file.URI, MIMEType: file.MIMEType}, nil
}

// Release deletes an uploaded file.
func (g *Gemini) Release(ctx context.Context, h Handle) error {
	if _, err := g.client.Files.Delete(ctx, h.ID, nil); err != nil {
		return fmt.Errorf("delete %s: %w", h.ID, err)
	}
	return nil
}

// Generate runs one generation over the request parts.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Handle != nil {
			parts = append(parts, genai.NewPartFromURI(p.Handle.URI, p.Handle.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.Instruction, genai.RoleUser),
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.Schema
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
