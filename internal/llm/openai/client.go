package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"contracts-backend/internal/llm"
	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/telemetry"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Client implements llm.Client using OpenAI-compatible Chat Completions.
type Client struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI client. Set OPENAI_BASE_URL to point at
// a compatible gateway.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("OPENAI_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	apiURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float32       `json:"temperature,omitempty"`
	ResponseFormat responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// AnalyzeContract runs one chat completion. Non-JSON output gets a single
// repair round-trip before failing.
func (c *Client) AnalyzeContract(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, llm.Usage, error) {
	messages := BuildPrompt(input.AnalysisType, input.ContractText, input.CustomParameters)
	raw, usage, err := c.analyzeOnce(ctx, messages)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		return nil, llm.Usage{}, err
	}
	logUsage(c.model, input.AnalysisType, usage)

	if json.Valid(raw) {
		metrics.LLMCalls.WithLabelValues("ok").Inc()
		return raw, usage, nil
	}

	fixed, fixUsage, err := c.analyzeOnce(ctx, buildFixPrompt(input.AnalysisType, raw))
	if err != nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		return nil, llm.Usage{}, err
	}
	logUsage(c.model, input.AnalysisType, fixUsage)
	usage.PromptTokens += fixUsage.PromptTokens
	usage.CompletionTokens += fixUsage.CompletionTokens
	usage.TotalTokens += fixUsage.TotalTokens

	if !json.Valid(fixed) {
		metrics.LLMCalls.WithLabelValues("invalid_json").Inc()
		return nil, llm.Usage{}, fmt.Errorf("invalid JSON from OpenAI")
	}
	metrics.LLMCalls.WithLabelValues("ok").Inc()
	return fixed, usage, nil
}

func (c *Client) analyzeOnce(ctx context.Context, messages []Message) (json.RawMessage, llm.Usage, error) {
	temp := float32(0)
	reqMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		reqMessages = append(reqMessages, chatMessage{Role: m.Role, Content: m.Content})
	}
	reqBody := chatRequest{
		Model:    c.model,
		Messages: reqMessages,
		ResponseFormat: responseFormat{
			Type: "json_object",
		},
	}
	reqBody.Temperature = &temp
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, llm.Usage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return nil, llm.Usage{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return nil, llm.Usage{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Usage{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, llm.Usage{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return nil, llm.Usage{}, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return nil, llm.Usage{}, fmt.Errorf("openai response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, llm.Usage{}, fmt.Errorf("openai response empty content")
	}
	return json.RawMessage(content), toUsage(parsed.Usage), nil
}

func toUsage(raw *struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}) llm.Usage {
	if raw == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		PromptTokens:     raw.PromptTokens,
		CompletionTokens: raw.CompletionTokens,
		TotalTokens:      raw.TotalTokens,
	}
}

func logUsage(model, analysisType string, usage llm.Usage) {
	telemetry.Debug("llm.response", map[string]any{
		"model":             model,
		"analysis_type":     analysisType,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
	})
}

var _ llm.Client = (*Client)(nil)
