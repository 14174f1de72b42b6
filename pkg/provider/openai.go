package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/skai/pkg/query"
)

const (
	// DefaultBaseURL is the GitHub Models inference endpoint.
	DefaultBaseURL = "https://models.github.ai/inference"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "openai/gpt-4.1-mini"
)

// Config holds the OpenAI generator configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// MaxRetries is handed to the SDK. Zero disables SDK retries.
	MaxRetries int

	// HTTPClient overrides the SDK transport (tests, proxies).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for the GitHub Models endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
	}
}

// APIError carries the HTTP status of a failed completion call.
type APIError struct {
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("completion failed with status %d: %v", e.StatusCode, e.Err)
}

// Unwrap returns the SDK error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// OpenAI generates events through an OpenAI-compatible chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAI creates a generator from cfg.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: log.With().Str("component", "openai-provider").Logger(),
	}, nil
}

// Messages builds the conversation sent for q.
func Messages(q query.Query) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SystemPrompt),
		openai.UserMessage(UserPrompt(q)),
	}
}

// Generate implements Generator. An empty answer yields "{}".
func (g *OpenAI) Generate(ctx context.Context, q query.Query) (json.RawMessage, error) {
	start := time.Now()

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: Messages(q),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &APIError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	content := "{}"
	if len(resp.Choices) > 0 && strings.TrimSpace(resp.Choices[0].Message.Content) != "" {
		content = resp.Choices[0].Message.Content
	}
	if !json.Valid([]byte(content)) {
		return nil, ErrInvalidJSON
	}

	g.logger.Debug().
		Str("query", q.String()).
		Str("model", g.model).
		Dur("duration", time.Since(start)).
		Int("bytes", len(content)).
		Msg("Generated astronomy events")

	return json.RawMessage(content), nil
}
