package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dshills/ruleminer/pkg/types"
)

const (
	geminiDefaultURL   = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.5-pro"
)

type geminiProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func newGeminiProvider(cfg ProviderConfig) (*geminiProvider, error) {
	apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY not set", types.ErrConfiguration)
	}
	return &geminiProvider{
		baseURL:     strings.TrimSuffix(firstNonEmpty(cfg.BaseURL, geminiDefaultURL), "/"),
		apiKey:      apiKey,
		model:       firstNonEmpty(cfg.Model, geminiDefaultModel),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *geminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	genConfig := map[string]any{
		"temperature":     p.temperature,
		"maxOutputTokens": p.maxTokens,
	}
	if req.JSON {
		genConfig["responseMimeType"] = "application/json"
	}
	payload := map[string]any{
		"contents":         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		"generationConfig": genConfig,
	}
	if req.System != "" {
		payload["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(p.model), url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate: %w", types.ErrCompletion, err)
	}
	defer resp.Body.Close()

	if err := checkResponse("gemini", resp); err != nil {
		return nil, err
	}

	var result struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
		ModelVersion string `json:"modelVersion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: gemini decode: %w", types.ErrCompletion, err)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", types.ErrCompletion)
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &Response{
		Text:         strings.TrimSpace(text.String()),
		Model:        firstNonEmpty(result.ModelVersion, p.model),
		PromptTokens: result.UsageMetadata.PromptTokenCount,
		OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		Duration:     time.Since(start),
	}, nil
}
