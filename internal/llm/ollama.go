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

// OllamaClient reaches a local Ollama runtime through its chat endpoint.
type OllamaClient struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates a client for a local Ollama runtime.
func NewOllamaClient(config Config) (*OllamaClient, error) {
	model := config.Model
	if model == "" {
		model = "llama3.2"
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaClient{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}, nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaModelOpts `json:"options"`
}

type ollamaModelOpts struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Complete sends one chat request to Ollama.
func (o *OllamaClient) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	opts = opts.withDefaults()

	reqBody := ollamaRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaModelOpts{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "ollama", Err: fmt.Errorf("marshal request: %w", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ProviderError{Kind: ErrUnreachable, Provider: "ollama", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("ollama", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError("ollama", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Kind:     ErrMalformedResponse,
			Provider: "ollama",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "ollama", Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if strings.TrimSpace(ollamaResp.Message.Content) == "" {
		return nil, &ProviderError{Kind: ErrMalformedResponse, Provider: "ollama", Err: fmt.Errorf("empty completion content")}
	}

	model := ollamaResp.Model
	if model == "" {
		model = o.model
	}

	return &Response{
		Content:  ollamaResp.Message.Content,
		Provider: "ollama",
		Model:    model,
	}, nil
}

func (o *OllamaClient) Provider() string { return "ollama" }

func (o *OllamaClient) Model() string { return o.model }
