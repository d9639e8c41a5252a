package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/resilience"
)

// OpenAI implements Client with the Chat Completions API. Any compatible
// endpoint works through baseURL.
type OpenAI struct {
	client *openai.Client
	opts   Options
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(apiKey, baseURL string, opts Options) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), opts: opts}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: float32(o.opts.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		wrapped := eris.Wrap(err, "openai: create chat completion")
		if code := openAIStatus(err); code != 0 {
			return "", resilience.WithStatus(wrapped, code)
		}
		return "", wrapped
	}

	zap.L().Debug("llm: openai usage",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
