package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the dialogue engine.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Server     ServerConfig     `json:"server"`
	Generator  GeneratorConfig  `json:"generator"`
	Persona    PersonaConfig    `json:"persona"`
	Escalation EscalationConfig `json:"escalation"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	History    HistoryConfig    `json:"history"`
	CRM        CRMConfig        `json:"crm"`
	Channels   ChannelsConfig   `json:"channels"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
}

// ServerConfig covers the webhook/admin HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// WebhookSecret signs inbound webhook payloads. Empty disables
	// signature checks (local development only).
	WebhookSecret string `json:"webhookSecret,omitempty"`
	// AdminToken guards the /api/* read endpoints. Empty leaves them open.
	AdminToken string `json:"adminToken,omitempty"`
}

type GeneratorConfig struct {
	Default        string                    `json:"default"`
	FailoverChain  []string                  `json:"failoverChain,omitempty"`
	TimeoutSeconds int                       `json:"timeoutSeconds"`
	RetryBackoffMS int                       `json:"retryBackoffMs"`
	MaxTokens      int                       `json:"maxTokens"`
	Providers      map[string]ProviderConfig `json:"providers"`
}

type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type"` // "openai" | "claude"
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

type PersonaConfig struct {
	// Threshold is the minimum confidence before a stored persona switches.
	Threshold float64 `json:"threshold"`
	// Window is how many recent customer messages feed classification.
	Window int `json:"window"`
}

type EscalationConfig struct {
	TurnCeiling     int `json:"turnCeiling"`
	UnansweredLimit int `json:"unansweredLimit"`
}

type KnowledgeConfig struct {
	Dir  string `json:"dir"`
	TopK int    `json:"topK"`
}

type HistoryConfig struct {
	DBPath string `json:"dbPath"`
	// Window is how many recent turns ride along in generation context.
	Window int `json:"window"`
}

// CRMConfig configures the customer-relationship backend the sync intents
// target.
type CRMConfig struct {
	Enabled   bool   `json:"enabled"`
	APIBase   string `json:"apiBase,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	// AssistTag marks customers a human has taken over; while present the
	// bot stays silent for them.
	AssistTag string `json:"assistTag,omitempty"`
}

type ChannelsConfig struct {
	Webhook  WebhookConfig  `json:"webhook"`
	Telegram TelegramConfig `json:"telegram"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ParseMode string `json:"parseMode"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.personabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".personabot"
	}
	return filepath.Join(home, ".personabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Knowledge.Dir = ExpandPath(cfg.Knowledge.Dir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Persona.Threshold <= 0 || cfg.Persona.Threshold > 1 {
		errs = append(errs, "persona.threshold must be in (0, 1]")
	}
	if cfg.Persona.Window < 1 {
		errs = append(errs, "persona.window must be >= 1")
	}
	if cfg.Escalation.TurnCeiling < 1 {
		errs = append(errs, "escalation.turnCeiling must be >= 1")
	}
	if cfg.Escalation.UnansweredLimit < 1 {
		errs = append(errs, "escalation.unansweredLimit must be >= 1")
	}
	if cfg.Knowledge.TopK < 1 {
		errs = append(errs, "knowledge.topK must be >= 1")
	}
	if cfg.History.Window < 1 {
		errs = append(errs, "history.window must be >= 1")
	}
	if cfg.Generator.TimeoutSeconds < 1 {
		errs = append(errs, "generator.timeoutSeconds must be >= 1")
	}
	if cfg.Generator.RetryBackoffMS < 0 {
		errs = append(errs, "generator.retryBackoffMs must be >= 0")
	}

	if cfg.Generator.Default == "" {
		errs = append(errs, "generator.default is required")
	} else if _, ok := cfg.Generator.Providers[cfg.Generator.Default]; !ok {
		errs = append(errs, fmt.Sprintf("generator.default references unknown provider: %s", cfg.Generator.Default))
	}
	for _, name := range cfg.Generator.FailoverChain {
		if _, ok := cfg.Generator.Providers[name]; !ok {
			errs = append(errs, fmt.Sprintf("generator.failoverChain references unknown provider: %s", name))
		}
	}
	for name, pc := range cfg.Generator.Providers {
		switch pc.Type {
		case "openai", "claude":
		default:
			errs = append(errs, fmt.Sprintf("generator.providers.%s: unknown type %q", name, pc.Type))
		}
	}

	if cfg.CRM.Enabled {
		if cfg.CRM.APIBase == "" {
			errs = append(errs, "crm.apiBase is required when crm is enabled")
		}
		if cfg.CRM.APIKey == "" {
			errs = append(errs, "crm.apiKey is required when crm is enabled")
		}
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
