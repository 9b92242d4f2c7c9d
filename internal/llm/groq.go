package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// groqHeaderPrefix selects which response headers get persisted on the
// model's quota entry.
const groqHeaderPrefix = "x-ratelimit-"

// Groq is an OpenAI-compatible provider. Groq publishes live quota state in
// rate-limit response headers, which Invoke captures alongside the result.
type Groq struct {
	client openai.Client
	logger *slog.Logger
}

func NewGroq(apiKey string, logger *slog.Logger, opts ...option.RequestOption) *Groq {
	options := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(groqBaseURL),
	}, opts...)
	return &Groq{client: openai.NewClient(options...), logger: logger}
}

func (g *Groq) Name() string { return ProviderGroq }

func (g *Groq) Invoke(ctx context.Context, req Request) (*Result, error) {
	var httpResp *http.Response
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: openai.Float(req.Temperature),
	}, option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, classifyOpenAIError(ProviderGroq, err)
	}
	if len(completion.Choices) == 0 {
		return nil, &APIError{Provider: ProviderGroq, Message: "no choices in response"}
	}

	result := &Result{
		Text:   strings.TrimSpace(completion.Choices[0].Message.Content),
		Tokens: int(completion.Usage.TotalTokens),
	}
	if httpResp != nil {
		result.Headers = rateLimitHeaders(httpResp.Header)
	}
	return result, nil
}

func (g *Groq) ListModels(ctx context.Context) ([]string, error) {
	page, err := g.client.Models.List(ctx)
	if err != nil {
		return nil, classifyOpenAIError(ProviderGroq, err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// buildMessages maps a rendered request onto chat messages. The system part
// is optional.
func buildMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	return append(messages, openai.UserMessage(req.User))
}

func classifyOpenAIError(provider string, err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &APIError{
			Provider:  provider,
			Status:    apierr.StatusCode,
			Message:   apierr.Message,
			Transient: transientStatus(apierr.StatusCode),
		}
	}
	// No API response at all: connection problems, treated as transient.
	return &APIError{Provider: provider, Message: err.Error(), Transient: true}
}

func rateLimitHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for name, values := range h {
		if strings.HasPrefix(strings.ToLower(name), groqHeaderPrefix) && len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
