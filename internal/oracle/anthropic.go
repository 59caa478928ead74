package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5-20250929"
	defaultAnthropicMaxTokens = 1024
	apiURL                    = "https://api.anthropic.com/v1/messages"
	apiVersion                = "2023-06-01"
)

// Anthropic scores messages with the Claude Messages API.
type Anthropic struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

// NewAnthropic creates a Claude-backed oracle.
func NewAnthropic(
	apiKey string,
	modelName string,
	maxTokens int,
	client *http.Client,
) *Anthropic {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Anthropic{
		apiKey:    apiKey,
		url:       apiURL,
		model:     modelName,
		maxTokens: maxTokens,
		client:    client,
	}
}

// WithURL points the client at a different endpoint.
func (a *Anthropic) WithURL(url string) *Anthropic {
	a.url = url
	return a
}

// Model returns the configured model name.
func (a *Anthropic) Model() string {
	return a.model
}

// Score makes a single request to the Messages API.
func (a *Anthropic) Score(ctx context.Context, req Request) (Result, error) {
	reqBody := apiRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    systemPrompt,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContentBlock{{Type: "text", Text: BuildPrompt(req)}},
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.url, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var out apiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Result{}, fmt.Errorf("%w: decoding envelope: %v", ErrMalformed, err)
	}

	var text []string
	for _, block := range out.Content {
		if block.Type == "text" {
			text = append(text, block.Text)
		}
	}

	result, err := ParseResult(strings.Join(text, ""))
	if err != nil {
		return Result{}, err
	}
	result.Model = a.model
	return result, nil
}

// --- Claude API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
