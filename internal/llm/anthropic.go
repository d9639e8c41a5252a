package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/resilience"
)

// Anthropic implements Client with the Anthropic Messages API.
type Anthropic struct {
	client sdk.Client
	opts   Options
}

// NewAnthropic creates an Anthropic client. SDK retries are disabled;
// Resilient owns retry policy.
func NewAnthropic(apiKey, baseURL string, opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}))
	}
	return &Anthropic{client: sdk.NewClient(reqOpts...), opts: opts}
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.opts.Model),
		MaxTokens: int64(a.opts.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
		Temperature: sdk.Float(a.opts.Temperature),
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		wrapped := eris.Wrap(err, "anthropic: create message")
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", resilience.WithStatus(wrapped, apiErr.StatusCode)
		}
		return "", wrapped
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	zap.L().Debug("llm: anthropic usage",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.String("stop_reason", string(msg.StopReason)),
	)
	return b.String(), nil
}
