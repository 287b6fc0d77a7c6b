package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// chatCompletions is the shared client for OpenAI-compatible chat APIs.
// DeepSeek exposes the same wire format on a different base URL.
type chatCompletions struct {
	name    string
	baseURL string
	opts    Options
	client  *http.Client
}

type OpenAI struct{ chatCompletions }

func NewOpenAI(opts Options) *OpenAI {
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	return &OpenAI{chatCompletions{
		name:    "openai",
		baseURL: "https://api.openai.com/v1",
		opts:    opts,
		client:  &http.Client{},
	}}
}

type DeepSeek struct{ chatCompletions }

func NewDeepSeek(opts Options) *DeepSeek {
	if opts.Model == "" {
		opts.Model = "deepseek-chat"
	}
	return &DeepSeek{chatCompletions{
		name:    "deepseek",
		baseURL: "https://api.deepseek.com",
		opts:    opts,
		client:  &http.Client{},
	}}
}

func (p *chatCompletions) Name() string  { return p.name }
func (p *chatCompletions) Model() string { return p.opts.Model }

func (p *chatCompletions) getKey() (string, error) {
	key, err := LoadCredential(p.name)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{
			ProviderName: p.name,
			Msg:          fmt.Sprintf("%s API key not found. Set it with '/config %s_api_key <key>'.", p.name, p.name),
		}
	}
	return key, nil
}

func (p *chatCompletions) Call(ctx context.Context, system string, payload []byte) (Reply, error) {
	key, err := p.getKey()
	if err != nil {
		return Reply{}, err
	}

	body := map[string]interface{}{
		"model": p.opts.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": string(payload)},
		},
	}
	if p.opts.MaxTokens > 0 {
		body["max_tokens"] = p.opts.MaxTokens
	}
	if p.opts.Temperature > 0 {
		body["temperature"] = p.opts.Temperature
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			return Reply{}, &ProviderAuthError{ProviderName: p.name, Msg: "Unauthorized: invalid API key"}
		}
		return Reply{}, fmt.Errorf("%s error: %s (status %d)", p.name, strings.TrimSpace(string(raw)), resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content          string `json:"content"`
				ReasoningContent string `json:"reasoning_content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("%s decode error: %w", p.name, err)
	}
	if len(result.Choices) == 0 {
		return Reply{}, fmt.Errorf("empty response from %s", p.name)
	}

	msg := result.Choices[0].Message
	return Reply{
		Text:      msg.Content,
		Reasoning: msg.ReasoningContent,
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}, nil
}

func (p *chatCompletions) Validate(ctx context.Context) (bool, string) {
	key, err := p.getKey()
	if err != nil {
		return false, fmt.Sprintf("%s API key not set.", p.name)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/models", nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("%s validation failed: %v", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, fmt.Sprintf("%s API key was rejected.", p.name)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("%s validation failed with status %d", p.name, resp.StatusCode)
	}
	return true, fmt.Sprintf("%s API key is valid.", p.name)
}
