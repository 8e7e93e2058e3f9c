// Package generator adapts generative chat backends behind the
// domain.Generator interface. Adapters normalize every backend failure into
// the domain sentinel errors and never retry; retry policy lives in the
// orchestrator.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"personabot/internal/domain"
)

// OpenAI implements domain.Generator for OpenAI-compatible chat APIs.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	maxTok  int
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		maxTok:  cfg.MaxTokens,
		client:  sharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model     string              `json:"model"`
	Messages  []domain.GenMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
	Stream    bool                `json:"stream"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Message      domain.GenMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

func (o *OpenAI) Generate(ctx context.Context, messages []domain.GenMessage) (string, error) {
	body := oaiRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: o.maxTok,
		Stream:    false,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn("openai request failed", "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		o.logger.Warn("openai returned non-200", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("%w: openai %d", domain.ErrGenerationUnavailable, resp.StatusCode)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("%w: decode: %v", domain.ErrGenerationUnavailable, err)
	}
	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrGenerationUnavailable)
	}

	choice := oaiResp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: content filter", domain.ErrGenerationRejected)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerationUnavailable)
	}
	return choice.Message.Content, nil
}

// IsRetryable reports whether a generation error is worth one retry.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrGenerationUnavailable)
}
