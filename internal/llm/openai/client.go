package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cvscanner-backend/internal/llm"
	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/internal/shared/telemetry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds everything the client needs; nothing is read from the environment.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// HTTPClient defaults to a client without its own timeout; callers bound
	// calls through the context.
	HTTPClient *http.Client
}

// Client implements llm.Structurer using OpenAI Chat Completions.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient constructs a new OpenAI client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		apiKey:      cfg.APIKey,
		endpoint:    baseURL + "/chat/completions",
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string         `json:"model"`
	Messages            []chatMessage  `json:"messages"`
	Temperature         *float64       `json:"temperature,omitempty"`
	MaxTokens           int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens int            `json:"max_completion_tokens,omitempty"`
	ResponseFormat      responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage,omitempty"`
	Error *apiError  `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Structure sends text to the model and returns a schema-complete document.
func (c *Client) Structure(ctx context.Context, text string) (llm.Output, error) {
	start := time.Now()
	content, usage, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: llm.StructurePrompt()},
		{Role: "user", Content: llm.StructureUserMessage(text)},
	})
	if err != nil {
		return llm.Output{}, err
	}

	formatted, raw, err := llm.ParseFormatted(content)
	if err != nil {
		telemetry.Warn("llm.structure.parse_failed", map[string]any{
			"model": c.model,
			"field": fieldOf(err),
			"error": err,
		})
		return llm.Output{}, err
	}

	logUsage(c.model, usage, time.Since(start))
	return llm.Output{Formatted: formatted, Raw: raw, Model: c.model, Usage: usage}, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, *llm.Usage, error) {
	reqBody := chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	if isReasoningModel(c.model) {
		reqBody.MaxCompletionTokens = c.maxTokens
	} else {
		temp := c.temperature
		reqBody.Temperature = &temp
		reqBody.MaxTokens = c.maxTokens
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStructuringFailed, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStructuringFailed, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStructuringFailed, "openai request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindStructuringFailed, "read openai response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, classifyStatus(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", nil, apperr.Wrap(apperr.KindStructuringFailed, "openai response envelope is not JSON", err)
	}
	if parsed.Error != nil {
		return "", nil, apperr.New(apperr.KindStructuringFailed, fmt.Sprintf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type))
	}
	if len(parsed.Choices) == 0 {
		return "", nil, apperr.New(apperr.KindStructuringFailed, "openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", nil, apperr.New(apperr.KindStructuringFailed, "openai response empty content")
	}
	return content, toUsage(parsed.Usage), nil
}

// classifyStatus maps upstream HTTP failures onto the structuring kinds.
func classifyStatus(status int, body []byte) error {
	detail := upstreamMessage(body)
	var kind apperr.Kind
	var message string
	switch {
	case status == http.StatusTooManyRequests:
		kind, message = apperr.KindStructuringRateLimited, "openai rate limit exceeded"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind, message = apperr.KindStructuringAuthError, "openai rejected the credentials"
	case status == http.StatusBadRequest:
		kind, message = apperr.KindStructuringBadRequest, "openai rejected the request"
	default:
		kind, message = apperr.KindStructuringFailed, fmt.Sprintf("openai returned status %d", status)
	}
	out := &apperr.Error{Kind: kind, Message: message}
	if kind == apperr.KindStructuringBadRequest {
		out.Detail = detail
		if out.Detail == "" {
			out.Detail = "BAD_REQUEST"
		}
	}
	if detail != "" {
		out.Err = fmt.Errorf("upstream: %s", detail)
	}
	return out
}

func upstreamMessage(body []byte) string {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return strings.TrimSpace(envelope.Error.Message)
}

func toUsage(raw *chatUsage) *llm.Usage {
	if raw == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     raw.PromptTokens,
		CompletionTokens: raw.CompletionTokens,
		TotalTokens:      raw.TotalTokens,
	}
}

func logUsage(model string, usage *llm.Usage, elapsed time.Duration) {
	fields := map[string]any{
		"model":          model,
		"prompt_version": llm.StructurePromptVersion,
		"duration_ms":    elapsed.Milliseconds(),
	}
	if usage != nil {
		fields["prompt_tokens"] = usage.PromptTokens
		fields["completion_tokens"] = usage.CompletionTokens
		fields["total_tokens"] = usage.TotalTokens
	}
	telemetry.Info("llm.structure.ok", fields)
}

func fieldOf(err error) string {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Field
	}
	return ""
}

// isReasoningModel reports models that reject temperature and max_tokens.
func isReasoningModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-5") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

var _ llm.Structurer = (*Client)(nil)
