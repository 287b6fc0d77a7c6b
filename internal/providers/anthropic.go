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

type Anthropic struct {
	opts   Options
	client *http.Client
}

func NewAnthropic(opts Options) *Anthropic {
	if opts.Model == "" {
		opts.Model = "claude-3-5-sonnet-20241022"
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Anthropic{opts: opts, client: &http.Client{}}
}

func (p *Anthropic) Name() string  { return "anthropic" }
func (p *Anthropic) Model() string { return p.opts.Model }

func (p *Anthropic) getKey() (string, error) {
	key, err := LoadCredential("anthropic")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: "anthropic", Msg: "Anthropic API key not found. Set it with '/config anthropic_api_key <key>'."}
	}
	return key, nil
}

func (p *Anthropic) Call(ctx context.Context, system string, payload []byte) (Reply, error) {
	key, err := p.getKey()
	if err != nil {
		return Reply{}, err
	}

	body := map[string]interface{}{
		"model":      p.opts.Model,
		"max_tokens": p.opts.MaxTokens,
		"system":     system,
		"messages": []map[string]string{
			{"role": "user", "content": string(payload)},
		},
	}
	if p.opts.Temperature > 0 {
		body["temperature"] = p.opts.Temperature
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized {
			return Reply{}, &ProviderAuthError{ProviderName: "anthropic", Msg: "Unauthorized: invalid API key"}
		}
		return Reply{}, fmt.Errorf("anthropic error: %s (status %d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("anthropic decode error: %w", err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return Reply{}, fmt.Errorf("empty response from anthropic")
	}
	return Reply{
		Text: strings.Join(parts, "\n"),
		Usage: Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
	}, nil
}

func (p *Anthropic) Validate(ctx context.Context) (bool, string) {
	key, err := p.getKey()
	if err != nil {
		return false, "Anthropic API key not set."
	}

	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.anthropic.com/v1/models", nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Anthropic validation failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, "Anthropic API key was rejected."
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Anthropic validation failed with status %d", resp.StatusCode)
	}
	return true, "Anthropic API key is valid."
}
