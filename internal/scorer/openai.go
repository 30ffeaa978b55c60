package scorer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "http://localhost:1234"
	defaultHTTPTimeout   = 30 * time.Second
	requestTemperature   = 0.1
	requestMaxTokens     = 500
)

// OpenAIClient scores frames through an OpenAI-compatible chat completions
// endpoint (LM Studio, vLLM, and similar local servers).
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	rubric     Rubric
	httpClient *http.Client
}

// OpenAIOption customizes the client.
type OpenAIOption func(*OpenAIClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets a bearer token. Local servers usually need none.
func WithAPIKey(key string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithRubric overrides the default instruction rubric.
func WithRubric(rubric Rubric) OpenAIOption {
	return func(c *OpenAIClient) {
		c.rubric = rubric
	}
}

// NewOpenAIClient constructs a scoring client for the given endpoint and
// model.
func NewOpenAIClient(baseURL, model string, opts ...OpenAIOption) *OpenAIClient {
	client := &OpenAIClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      strings.TrimSpace(model),
		rubric:     DefaultRubric(),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = defaultOpenAIBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Score submits one frame with the fixed rubric payload and validates the
// structured response.
func (c *OpenAIClient) Score(ctx context.Context, imagePath string) (Result, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return Result{}, fmt.Errorf("read frame %s: %w", imagePath, err)
	}

	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: c.rubric.Prompt()},
					{Type: "image_url", ImageURL: &imageRef{
						URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData),
					}},
				},
			},
		},
		Temperature: requestTemperature,
		MaxTokens:   requestMaxTokens,
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/v1/chat/completions")
	if err != nil {
		return Result{}, fmt.Errorf("build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, transportError("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, transportError("read body: %v", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, transportError("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return Result{}, malformedError("decode response: %v", err)
	}
	if completion.Error != nil {
		return Result{}, transportError("api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return Result{}, malformedError("empty choices")
	}
	return parsePayload(completion.Choices[0].Message.Content)
}
