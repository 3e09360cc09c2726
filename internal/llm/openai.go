package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Config configures an OpenAIClient
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Models     []string
	MaxRetries int
}

// OpenAIClient implements LLMClient for any OpenAI-compatible endpoint
type OpenAIClient struct {
	client     *openai.Client
	model      string
	models     []string
	baseURL    string
	maxRetries int
	backoff    time.Duration
}

// NewOpenAIClient creates a new client. Models, when set, restricts SetModel.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}

	client := openai.NewClient(opts...)
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &OpenAIClient{
		client:     &client,
		model:      cfg.Model,
		models:     cfg.Models,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		backoff:    100 * time.Millisecond,
	}
}

// Chat implements LLMClient
func (c *OpenAIClient) Chat(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(float64(req.Temperature))

	var resp *openai.ChatCompletion
	err := retryWithBackoff(ctx, c.maxRetries, c.backoff, func() error {
		r, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return wrapAPIError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]

	response := &LLMResponse{
		Content:    choice.Message.Content,
		Model:      model,
		TokensUsed: int(resp.Usage.TotalTokens),
	}
	for _, tc := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return response, nil
}

// SetModel updates the model for this client
func (c *OpenAIClient) SetModel(model string) error {
	if len(c.models) > 0 && !contains(c.models, model) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	c.model = model
	log.Printf("🤖 LLM model updated to: %s", model)
	return nil
}

// GetModel returns the current model
func (c *OpenAIClient) GetModel() string {
	return c.model
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msg := openai.AssistantMessage(m.Content)
			for _, tc := range m.ToolCalls {
				msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, msg)
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
			},
		})
	}
	return out
}

// wrapAPIError attaches the HTTP status of an openai-go error
func wrapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &APIError{Err: err}
}

// isRetryableError checks if an error can be retried
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.Retryable()
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"rate limit",
		"server error",
		"eof",
	}
	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}
	return false
}

// retryWithBackoff implements exponential backoff retry
func retryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) || attempt == maxRetries-1 {
			break
		}

		delay := base * time.Duration(1<<uint(attempt))
		log.Printf("⚠️ LLM request failed (attempt %d/%d), retrying in %v: %v", attempt+1, maxRetries, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}
