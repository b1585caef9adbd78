package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultPricePerThousand holds a coarse, hardcoded USD-per-1000-token rate for
// cost tracking. Real rates drift with provider pricing changes; operators
// running this against a different backend should override via
// ModelPricing on OpenAICompatibleProvider.
var defaultPricePerThousand = map[string]float64{
	"gpt-4o":      0.0050,
	"gpt-4o-mini": 0.00015,
	"gpt-5":       0.0075,
}

// OpenAICompatibleProvider implements Provider against any HTTP endpoint
// speaking the OpenAI chat-completions wire format (OpenAI itself, and most
// self-hosted gateways fronting other vendors).
type OpenAICompatibleProvider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	ModelPricing map[string]float64
}

// NewOpenAICompatibleProvider builds a provider. baseURL defaults to the
// public OpenAI API when empty.
func NewOpenAICompatibleProvider(apiKey, baseURL string, timeout time.Duration) *OpenAICompatibleProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatibleProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		ModelPricing: defaultPricePerThousand,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

// Complete implements Provider.
func (p *OpenAICompatibleProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("llm: no API key configured")
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: transport error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("llm: rate limited (status %d): %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: upstream error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("llm: parsing response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty completion choices")
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}

	return &Response{
		Content:          parsed.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
		CostUSD:          p.cost(model, parsed.Usage.PromptTokens+parsed.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAICompatibleProvider) cost(model string, totalTokens int) float64 {
	rate, ok := p.ModelPricing[model]
	if !ok {
		rate = 0.002
	}
	return rate * float64(totalTokens) / 1000.0
}
