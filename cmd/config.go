package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewd"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage reviewd configuration.

Running bare 'reviewd config' is the same as 'reviewd config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# reviewd configuration
# See: reviewd config show (for effective values and sources)

# SQLite database path (default: ~/.config/reviewd/reviewd.db)
# db_path: {{ .DBPath }}

# HTTP API port for 'reviewd serve' (default: 8080)
# port: {{ .Port }}

# GitHub
github:
  # Personal access token; GITHUB_TOKEN also works
  # token: ""

# Anthropic models
anthropic:
  # api_key: ""
  compile_model: "{{ .CompileModel }}"
  semantic_model: "{{ .SemanticModel }}"

# External reference review source
reference:
  # Structured bundle API endpoint; leave empty to rely on PR discussion
  # base_url: ""
  # api_key: ""
  # Author prefix that marks reference bot comments in PR discussion
  bot_signature: "{{ .BotSignature }}"

# Deterministic detectors
detect:
  # Optional YAML ruleset path for disabling families or adding patterns
  # ruleset: ""

# Rate limits
limits:
  fetch_concurrency: {{ .FetchConcurrency }}
  llm_spacing_ms: {{ .LLMSpacingMS }}
`

type configTemplateData struct {
	DBPath           string
	Port             int
	CompileModel     string
	SemanticModel    string
	BotSignature     string
	FetchConcurrency int
	LLMSpacingMS     int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:           viper.GetString("db_path"),
		Port:             viper.GetInt("port"),
		CompileModel:     viper.GetString("anthropic.compile_model"),
		SemanticModel:    viper.GetString("anthropic.semantic_model"),
		BotSignature:     viper.GetString("reference.bot_signature"),
		FetchConcurrency: viper.GetInt("limits.fetch_concurrency"),
		LLMSpacingMS:     viper.GetInt("limits.llm_spacing_ms"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "REVIEWD_DB_PATH"},
	{Key: "port", EnvVar: "REVIEWD_PORT"},
	{Key: "github.token", EnvVar: "REVIEWD_GITHUB_TOKEN", Secret: true},
	{Key: "anthropic.api_key", EnvVar: "REVIEWD_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.compile_model", EnvVar: "REVIEWD_ANTHROPIC_COMPILE_MODEL"},
	{Key: "anthropic.semantic_model", EnvVar: "REVIEWD_ANTHROPIC_SEMANTIC_MODEL"},
	{Key: "reference.base_url", EnvVar: "REVIEWD_REFERENCE_BASE_URL"},
	{Key: "reference.api_key", EnvVar: "REVIEWD_REFERENCE_API_KEY", Secret: true},
	{Key: "reference.bot_signature", EnvVar: "REVIEWD_REFERENCE_BOT_SIGNATURE"},
	{Key: "detect.ruleset", EnvVar: "REVIEWD_DETECT_RULESET"},
	{Key: "limits.fetch_concurrency", EnvVar: "REVIEWD_LIMITS_FETCH_CONCURRENCY"},
	{Key: "limits.llm_spacing_ms", EnvVar: "REVIEWD_LIMITS_LLM_SPACING_MS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			if s, ok := val.(string); ok && s != "" {
				val = "(set)"
			}
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-34s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'reviewd config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
