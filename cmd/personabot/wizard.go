package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"personabot/internal/config"
	"personabot/internal/knowledge"

	"github.com/spf13/cobra"
)

// providerMeta describes a generator backend option for the wizard.
type providerMeta struct {
	Name         string
	Type         string
	EnvVar       string
	APIBase      string
	DefaultModel string
}

var knownProviders = []providerMeta{
	{Name: "openai", Type: "openai", EnvVar: "OPENAI_API_KEY", APIBase: "https://api.openai.com/v1", DefaultModel: "gpt-4o-mini"},
	{Name: "claude", Type: "claude", EnvVar: "ANTHROPIC_API_KEY", APIBase: "https://api.anthropic.com", DefaultModel: "claude-sonnet-4-5-20250514"},
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: workspace → generator → channels → CRM → save config",
		Long:  "Guides you through the workspace path, the default generation backend (and API key), the inbound channels (webhook/Telegram), and optional CRM sync. Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}
	ensureProviders(cfg)

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Workspace
	fmt.Println("\n--- Step 1: Workspace ---")
	workspace := cfg.General.Workspace
	if workspace == "" {
		workspace = "~/.personabot/workspace"
	}
	fmt.Fprint(os.Stdout, "Directory for bot data (database, knowledge files)")
	ws, err := prompt(workspace)
	if err != nil {
		return err
	}
	if ws != "" {
		cfg.General.Workspace = ws
	}
	cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Fprintf(os.Stdout, "  Using workspace: %s\n", cfg.General.Workspace)

	// Step 2: Generation backend
	fmt.Println("\n--- Step 2: Generation backend ---")
	for i, p := range knownProviders {
		fmt.Fprintf(os.Stdout, "  %d) %s (set %s)\n", i+1, p.Name, p.EnvVar)
	}
	fmt.Fprint(os.Stdout, "Choose backend (1-"+fmt.Sprint(len(knownProviders))+")")
	defNum := "1"
	for i, p := range knownProviders {
		if p.Name == cfg.Generator.Default {
			defNum = fmt.Sprint(i + 1)
			break
		}
	}
	choice, err := prompt(defNum)
	if err != nil {
		return err
	}
	var idx int
	if n, _ := fmt.Sscanf(choice, "%d", &idx); n != 1 || idx < 1 || idx > len(knownProviders) {
		idx = 1
	}
	prov := knownProviders[idx-1]
	cfg.Generator.Default = prov.Name
	pc := cfg.Generator.Providers[prov.Name]
	pc.Enabled = true
	pc.Type = prov.Type
	pc.APIBase = prov.APIBase
	if pc.Model == "" {
		pc.Model = prov.DefaultModel
	}
	cfg.Generator.Providers[prov.Name] = pc

	fmt.Fprintf(os.Stdout, "API key: paste key or env var (e.g. ${%s})", prov.EnvVar)
	key, err := prompt("${" + prov.EnvVar + "}")
	if err != nil {
		return err
	}
	if key != "" {
		pc := cfg.Generator.Providers[prov.Name]
		pc.APIKey = key
		cfg.Generator.Providers[prov.Name] = pc
	}
	// Disable the backends not chosen as default.
	for name := range cfg.Generator.Providers {
		if name != prov.Name {
			p := cfg.Generator.Providers[name]
			p.Enabled = false
			cfg.Generator.Providers[name] = p
		}
	}
	fmt.Fprintf(os.Stdout, "  Using backend: %s\n", prov.Name)

	// Step 3: Channels
	fmt.Println("\n--- Step 3: Channels ---")
	fmt.Fprint(os.Stdout, "Enable Telegram transport? (y/n)")
	tg, err := prompt("n")
	if err != nil {
		return err
	}
	if tg == "y" || tg == "yes" {
		cfg.Channels.Telegram.Enabled = true
		fmt.Fprint(os.Stdout, "Telegram bot token (from @BotFather)")
		tok, err := prompt("")
		if err != nil {
			return err
		}
		if tok != "" {
			cfg.Channels.Telegram.Token = tok
		}
	} else {
		cfg.Channels.Telegram.Enabled = false
	}
	cfg.Channels.Webhook.Enabled = true
	fmt.Fprintf(os.Stdout, "  Webhook enabled on port %d; Telegram: %v\n",
		cfg.Server.Port, cfg.Channels.Telegram.Enabled)

	// Step 4: CRM sync
	fmt.Println("\n--- Step 4: CRM sync ---")
	fmt.Fprint(os.Stdout, "Enable CRM tag/field sync? (y/n)")
	crmChoice, err := prompt("n")
	if err != nil {
		return err
	}
	if crmChoice == "y" || crmChoice == "yes" {
		cfg.CRM.Enabled = true
		fmt.Fprint(os.Stdout, "CRM API base URL")
		base, err := prompt(cfg.CRM.APIBase)
		if err != nil {
			return err
		}
		cfg.CRM.APIBase = base
		fmt.Fprint(os.Stdout, "CRM API key: paste key or env var (e.g. ${CRM_API_KEY})")
		key, err := prompt("${CRM_API_KEY}")
		if err != nil {
			return err
		}
		cfg.CRM.APIKey = key
	} else {
		cfg.CRM.Enabled = false
	}

	// Save, then seed knowledge if it is missing.
	cfgDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	knowledgeDir := config.ExpandPath(cfg.Knowledge.Dir)
	if _, err := os.Stat(knowledgeDir); os.IsNotExist(err) {
		if err := knowledge.WriteDefaults(knowledgeDir); err != nil {
			return fmt.Errorf("seed knowledge: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Seeded default knowledge files in %s\n", knowledgeDir)
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	fmt.Println("Next: run 'personabot gateway' to start serving.")
	return nil
}

// ensureProviders adds the known backends so SetByPath and the wizard have
// keys to work with.
func ensureProviders(cfg *config.Config) {
	if cfg.Generator.Providers == nil {
		cfg.Generator.Providers = make(map[string]config.ProviderConfig)
	}
	for _, p := range knownProviders {
		if _, ok := cfg.Generator.Providers[p.Name]; !ok {
			cfg.Generator.Providers[p.Name] = config.ProviderConfig{
				Enabled: p.Name == cfg.Generator.Default,
				Type:    p.Type,
				APIBase: p.APIBase,
				Model:   p.DefaultModel,
			}
		}
	}
}
