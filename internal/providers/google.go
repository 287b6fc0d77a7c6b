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

type Gemini struct {
	opts   Options
	client *http.Client
}

func NewGemini(opts Options) *Gemini {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	return &Gemini{opts: opts, client: &http.Client{}}
}

func (p *Gemini) Name() string  { return "gemini" }
func (p *Gemini) Model() string { return p.opts.Model }

func (p *Gemini) getKey() (string, error) {
	key, err := LoadCredential("gemini")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: "gemini", Msg: "Gemini API key not found. Set it with '/config gemini_api_key <key>'."}
	}
	return key, nil
}

func (p *Gemini) Call(ctx context.Context, system string, payload []byte) (Reply, error) {
	key, err := p.getKey()
	if err != nil {
		return Reply{}, err
	}

	genConfig := map[string]interface{}{}
	if p.opts.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = p.opts.MaxTokens
	}
	if p.opts.Temperature > 0 {
		genConfig["temperature"] = p.opts.Temperature
	}

	body := map[string]interface{}{
		"system_instruction": map[string]interface{}{
			"parts": []map[string]string{{"text": system}},
		},
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": string(payload)}},
			},
		},
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Reply{}, err
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", p.opts.Model, key)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized ||
			(resp.StatusCode == http.StatusBadRequest && bytes.Contains(raw, []byte("API key not valid"))) {
			return Reply{}, &ProviderAuthError{ProviderName: "gemini", Msg: "Unauthorized: invalid API key"}
		}
		return Reply{}, fmt.Errorf("gemini error: %s (status %d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("gemini decode error: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return Reply{}, fmt.Errorf("empty response from gemini")
	}

	var parts []string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return Reply{
		Text: strings.Join(parts, "\n"),
		Usage: Usage{
			InputTokens:  result.UsageMetadata.PromptTokenCount,
			OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func (p *Gemini) Validate(ctx context.Context) (bool, string) {
	key, err := p.getKey()
	if err != nil {
		return false, "Gemini API key not set."
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s?key=%s", p.opts.Model, key)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Gemini validation failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
		return false, "Gemini API key was rejected."
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Gemini validation failed with status %d", resp.StatusCode)
	}
	return true, "Gemini API key is valid."
}
