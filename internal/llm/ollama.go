package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/ruleminer/pkg/types"
)

type ollamaProvider struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func newOllamaProvider(cfg ProviderConfig) (*ollamaProvider, error) {
	model := firstNonEmpty(cfg.Model, os.Getenv("OLLAMA_MODEL"))
	if model == "" {
		return nil, fmt.Errorf("%w: ollama model not specified (set model_name or OLLAMA_MODEL)", types.ErrConfiguration)
	}
	return &ollamaProvider{
		baseURL:     strings.TrimSuffix(firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), "http://localhost:11434"), "/"),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]any{
		"model":  p.model,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": p.temperature,
			"num_predict": p.maxTokens,
		},
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.JSON {
		payload["format"] = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama generate: %w", types.ErrCompletion, err)
	}
	defer resp.Body.Close()

	if err := checkResponse("ollama", resp); err != nil {
		return nil, err
	}

	var result struct {
		Response        string `json:"response"`
		Model           string `json:"model"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: ollama decode: %w", types.ErrCompletion, err)
	}

	return &Response{
		Text:         strings.TrimSpace(result.Response),
		Model:        result.Model,
		PromptTokens: result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		Duration:     time.Since(start),
	}, nil
}
