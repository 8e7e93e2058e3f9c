package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"personabot/internal/domain"
)

const (
	claudeAPIURL       = "https://api.anthropic.com/v1/messages"
	claudeAPIVersion   = "2023-06-01"
	claudeDefaultModel = "claude-sonnet-4-5-20250514"
)

// Claude implements domain.Generator for the Anthropic messages API.
type Claude struct {
	apiKey string
	apiURL string
	model  string
	maxTok int
	client *http.Client
	logger *slog.Logger
}

type ClaudeConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.Model == "" {
		cfg.Model = claudeDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	url := claudeAPIURL
	if cfg.APIBase != "" {
		url = strings.TrimSuffix(cfg.APIBase, "/") + "/v1/messages"
	}
	return &Claude{
		apiKey: cfg.APIKey,
		apiURL: url,
		model:  cfg.Model,
		maxTok: cfg.MaxTokens,
		client: sharedHTTPClient(cfg.Timeout),
		logger: cfg.Logger,
	}
}

func (c *Claude) Name() string { return "claude" }

func (c *Claude) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("claude: no API key configured")
	}
	return nil
}

type claudeRequest struct {
	Model     string      `json:"model"`
	MaxTokens int         `json:"max_tokens"`
	System    string      `json:"system,omitempty"`
	Messages  []claudeMsg `json:"messages"`
}

type claudeMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (c *Claude) Generate(ctx context.Context, messages []domain.GenMessage) (string, error) {
	// The messages API takes the system prompt out of band.
	var system string
	msgs := make([]claudeMsg, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, claudeMsg{Role: m.Role, Content: m.Content})
	}

	body := claudeRequest{
		Model:     c.model,
		MaxTokens: c.maxTok,
		System:    system,
		Messages:  msgs,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("claude request failed", "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("claude returned non-200", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("%w: claude %d", domain.ErrGenerationUnavailable, resp.StatusCode)
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("%w: decode: %v", domain.ErrGenerationUnavailable, err)
	}
	if cResp.StopReason == "refusal" {
		return "", fmt.Errorf("%w: refusal", domain.ErrGenerationRejected)
	}

	var sb strings.Builder
	for _, part := range cResp.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerationUnavailable)
	}
	return sb.String(), nil
}
