// Package llm talks to OpenAI compatible chat completion endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/retry"
)

// Endpoints known by name. Anything else is used as a base URL.
var Endpoints = map[string]string{
	"openai": "https://api.openai.com/v1",
	"gemini": "https://generativelanguage.googleapis.com/v1beta/openai",
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Retry   retry.Policy
}

func NewClient(baseURL, apiKey string) *Client {
	if u, ok := Endpoints[baseURL]; ok {
		baseURL = u
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    http.DefaultClient,
		Retry:   retry.Policy{MaxAttempts: retry.Default.MaxAttempts, Backoff: retry.Default.Backoff, Retryable: Retryable},
	}
}

// StatusError is a non-200 response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.Code, e.Body)
}

// Retryable reports whether err is a rate limit, a server error or a
// transport failure.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var pe *ParseError
	return !errors.As(err, &pe)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

type ChatResponse struct {
	Content string
	Usage   result.Usage
}

type chatBody struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResult struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens            int `json:"prompt_tokens"`
		CompletionTokens        int `json:"completion_tokens"`
		TotalTokens             int `json:"total_tokens"`
		CompletionTokensDetails struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

// Chat sends a chat completion request, retrying according to c.Retry.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(chatBody{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	var out *ChatResponse
	err = c.Retry.Do(ctx, func(ctx context.Context) error {
		var res chatResult
		if err := c.do(ctx, http.MethodPost, "/chat/completions", body, &res); err != nil {
			return err
		}
		if len(res.Choices) == 0 {
			return &ParseError{Err: errors.New("no choices in response")}
		}
		out = &ChatResponse{
			Content: res.Choices[0].Message.Content,
			Usage: result.Usage{
				InputTokens:    res.Usage.PromptTokens,
				OutputTokens:   res.Usage.CompletionTokens,
				ThinkingTokens: res.Usage.CompletionTokensDetails.ReasoningTokens,
				TotalTokens:    res.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Models lists the model ids served by the endpoint.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var res struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := c.Retry.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/models", nil, &res)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Data))
	for _, m := range res.Data {
		ids = append(ids, strings.TrimPrefix(m.ID, "models/"))
	}
	return ids, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return retry.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
