package oracle

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

// OpenAI is a Gateway backed by the Responses API. Images are sent inline
// as data URLs, so uploads are local and releasing them is a no-op.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAI creates an OpenAI gateway. Extra options are applied after the
// API key, which lets tests point the client at a local server.
func NewOpenAI(apiKey, model string, timeout time.Duration, logger *zap.Logger, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("openai"),
	}
}

// Name returns the provider name.
func (o *OpenAI) Name() string { return "openai" }

// Upload encodes the image as a data URL.
func (o *OpenAI) Upload(ctx context.Context, img Image) (Handle, error) {
	if len(img.Data) == 0 {
		return Handle{}, fmt.Errorf("upload %s: empty image", img.Name)
	}
	uri := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return Handle{ID: img.Name, URI: uri, MIMEType: img.MIMEType}, nil
}

// Release is a no-op.
func (o *OpenAI) Release(ctx context.Context, h Handle) error {
	return nil
}

// Generate runs one response over the request parts.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	content := make(responses.ResponseInputMessageContentListParam, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Handle != nil {
			content = append(content, responses.ResponseInputContentUnionParam{
				OfInputImage: &responses.ResponseInputImageParam{
					Detail:   responses.ResponseInputImageDetailAuto,
					ImageURL: openai.String(p.Handle.URI),
				},
			})
			continue
		}
		content = append(content, responses.ResponseInputContentParamOfInputText(p.Text))
	}

	params := responses.ResponseNewParams{
		Model:        o.model,
		Instructions: openai.String(req.Instruction),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "result"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(false),
				},
			},
		}
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create response: %w", err)
	}
	return resp.OutputText(), nil
}
