package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// LMStudioClient reaches a local LM Studio runtime through its
// OpenAI-compatible completion endpoint. The chat/completion endpoint
// difference between runtimes is absorbed here and never leaks to callers.
type LMStudioClient struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewLMStudioClient creates a client for a local LM Studio runtime.
func NewLMStudioClient(config Config) (*LMStudioClient, error) {
	model := config.Model
	if model == "" {
		model = "local-model"
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:1234/v1"
	}

	return &LMStudioClient{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}, nil
}

type lmStudioRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type lmStudioResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends one completion request to LM Studio.
func (l *LMStudioClient) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	opts = opts.withDefaults()

	// Many local models served by LM Studio only accept user/assistant
	// roles, so system messages are folded into user messages.
	converted := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			msg = Message{Role: RoleUser, Content: "System Instructions: " + msg.Content}
		}
		converted = append(converted, msg)
	}

	reqBody := lmStudioRequest{
		Model:       l.model,
		Messages:    converted,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "lmstudio", Err: fmt.Errorf("marshal request: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ProviderError{Kind: ErrUnreachable, Provider: "lmstudio", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("lmstudio", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError("lmstudio", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Kind:     ErrMalformedResponse,
			Provider: "lmstudio",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var lmResp lmStudioResponse
	if err := json.Unmarshal(body, &lmResp); err != nil {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "lmstudio", Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if len(lmResp.Choices) == 0 || strings.TrimSpace(lmResp.Choices[0].Message.Content) == "" {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "lmstudio", Err: fmt.Errorf("no completion choices returned")}
	}

	return &Response{
		Content:  lmResp.Choices[0].Message.Content,
		Provider: "lmstudio",
		Model:    l.model,
	}, nil
}

func (l *LMStudioClient) Provider() string { return "lmstudio" }

func (l *LMStudioClient) Model() string { return l.model }
