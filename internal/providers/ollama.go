package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Ollama struct {
	opts   Options
	client *http.Client
}

func NewOllama(opts Options) *Ollama {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:11434"
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.Model == "" {
		opts.Model = "qwen2.5-coder"
	}
	return &Ollama{opts: opts, client: &http.Client{}}
}

func (p *Ollama) Name() string  { return "ollama" }
func (p *Ollama) Model() string { return p.opts.Model }

func (p *Ollama) Call(ctx context.Context, system string, payload []byte) (Reply, error) {
	options := map[string]interface{}{}
	if p.opts.MaxTokens > 0 {
		// Ollama calls the output cap num_predict.
		options["num_predict"] = p.opts.MaxTokens
	}
	if p.opts.Temperature > 0 {
		options["temperature"] = p.opts.Temperature
	}

	body := map[string]interface{}{
		"model": p.opts.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": string(payload)},
		},
		"stream":  false,
		"options": options,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.opts.Endpoint+"/api/chat", bytes.NewBuffer(bodyBytes))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Reply{}, fmt.Errorf("model %q not found; run 'ollama pull %s' on %s", p.opts.Model, p.opts.Model, p.opts.Endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Reply{}, fmt.Errorf("ollama error: %s (status %d)", strings.TrimSpace(string(raw)), resp.StatusCode)
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("ollama decode error: %w", err)
	}

	content, thinking := splitThinkTags(result.Message.Content)
	return Reply{
		Text:      content,
		Reasoning: thinking,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
	}, nil
}

// splitThinkTags separates <think>...</think> reasoning blocks emitted by
// local reasoning models from the answer proper.
func splitThinkTags(content string) (text, thinking string) {
	open := strings.Index(content, "<think>")
	closing := strings.Index(content, "</think>")
	if open == -1 || closing == -1 || closing < open {
		return content, ""
	}
	thinking = strings.TrimSpace(content[open+len("<think>") : closing])
	text = strings.TrimSpace(content[closing+len("</think>"):])
	return text, thinking
}

func (p *Ollama) Validate(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", p.opts.Endpoint+"/api/tags", nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Ollama not reachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Ollama endpoint returned status %d", resp.StatusCode)
	}
	return true, "Ollama endpoint is reachable."
}
