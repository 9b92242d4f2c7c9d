package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter is an OpenAI-compatible provider. It publishes no usable token
// accounting for its free tier, so completions are tracked by call count
// only and Result.Tokens is always zero.
type OpenRouter struct {
	apiKey     string
	baseURL    string
	client     openai.Client
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOpenRouter(apiKey string, logger *slog.Logger, opts ...option.RequestOption) *OpenRouter {
	options := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openRouterBaseURL),
	}, opts...)
	return &OpenRouter{
		apiKey:     apiKey,
		baseURL:    openRouterBaseURL,
		client:     openai.NewClient(options...),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (o *OpenRouter) Name() string { return ProviderOpenRouter }

func (o *OpenRouter) Invoke(ctx context.Context, req Request) (*Result, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return nil, classifyOpenAIError(ProviderOpenRouter, err)
	}
	if len(completion.Choices) == 0 {
		return nil, &APIError{Provider: ProviderOpenRouter, Message: "no choices in response"}
	}
	return &Result{Text: strings.TrimSpace(completion.Choices[0].Message.Content)}, nil
}

func (o *OpenRouter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: ProviderOpenRouter, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	names := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Credits returns a short human-readable account balance line.
func (o *OpenRouter) Credits(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/auth/key", nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: ProviderOpenRouter, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var parsed struct {
		Data struct {
			Limit *float64 `json:"limit"`
			Usage float64  `json:"usage"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if parsed.Data.Limit == nil {
		return fmt.Sprintf("used $%.4f (no limit)", parsed.Data.Usage), nil
	}
	return fmt.Sprintf("used $%.4f of $%.2f", parsed.Data.Usage, *parsed.Data.Limit), nil
}
