package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewd/internal/detect"
	"github.com/joescharf/reviewd/internal/gate"
	"github.com/joescharf/reviewd/internal/github"
	"github.com/joescharf/reviewd/internal/invoke"
	"github.com/joescharf/reviewd/internal/llm"
	"github.com/joescharf/reviewd/internal/output"
	"github.com/joescharf/reviewd/internal/pipeline"
	"github.com/joescharf/reviewd/internal/reference"
	"github.com/joescharf/reviewd/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
// The limiters are process-wide: every GitHub fetch and every model call
// in this process shares them, whatever surface triggered the review.
var (
	ui        *output.UI
	dataStore store.Store

	fetchLimiter *invoke.Limiter
	llmLimiter   *invoke.Limiter

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "reviewd",
	Short: "Pull request review pipeline - compile gate, detectors, and semantic analysis",
	Long: `reviewd reviews GitHub pull requests through a staged pipeline:
an LLM compile gate cross-validated against an external reference review,
deterministic pattern detectors over the diff, and a semantic review pass.
Results are synthesized into a markdown report and stored locally.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/reviewd/config.yaml)")
}

func initConfig() {
	// .env is optional and never overrides real environment variables
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "reviewd")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVIEWD")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "reviewd")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "reviewd.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("github.token", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.compile_model", "claude-haiku-4-5-20251001")
	viper.SetDefault("anthropic.semantic_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("reference.base_url", "")
	viper.SetDefault("reference.api_key", "")
	viper.SetDefault("reference.bot_signature", "greptile")
	viper.SetDefault("detect.ruleset", "")
	viper.SetDefault("limits.fetch_concurrency", 5)
	viper.SetDefault("limits.llm_spacing_ms", 400)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	fetchLimiter = invoke.NewLimiter(viper.GetInt("limits.fetch_concurrency"), 0)
	llmLimiter = invoke.NewLimiter(1, time.Duration(viper.GetInt("limits.llm_spacing_ms"))*time.Millisecond)
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// githubToken resolves the effective GitHub token, with override taking
// precedence over config and environment.
func githubToken(override string) string {
	if override != "" {
		return override
	}
	token := viper.GetString("github.token")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return token
}

// newGitHubClient builds a REST client on the shared fetch limiter.
func newGitHubClient(tokenOverride string) github.Client {
	return github.New(githubToken(tokenOverride), fetchLimiter)
}

// newLLMClient creates an LLM client from config/env, or returns nil if
// no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey,
		viper.GetString("anthropic.compile_model"),
		viper.GetString("anthropic.semantic_model"),
		llmLimiter)
}

// newResolver assembles the external reference strategy chain: the
// structured bundle API first, then the discussion-scrape fallback.
func newResolver(gh github.Client) *reference.Adapter {
	var strategies []reference.Strategy
	if s := reference.NewBundleStrategy(viper.GetString("reference.base_url"), viper.GetString("reference.api_key")); s != nil {
		strategies = append(strategies, s)
	}
	strategies = append(strategies, reference.NewDiscussionStrategy(gh, viper.GetString("reference.bot_signature")))
	return reference.NewAdapter(strategies...)
}

// newPipeline wires a full review pipeline. An empty tokenOverride uses
// the configured GitHub credentials.
func newPipeline(tokenOverride string) (*pipeline.Pipeline, error) {
	llmClient := newLLMClient()
	if llmClient == nil {
		return nil, fmt.Errorf("no Anthropic API key configured (set REVIEWD_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY)")
	}

	engine := detect.NewEngine(nil)
	if path := viper.GetString("detect.ruleset"); path != "" {
		rs, err := detect.LoadRuleset(path)
		if err != nil {
			return nil, fmt.Errorf("load detector ruleset: %w", err)
		}
		engine.WithDetectors(rs.Apply(detect.BuiltinDetectors()))
	}

	gh := newGitHubClient(tokenOverride)
	return pipeline.New(
		gh,
		newResolver(gh),
		gate.New(llmClient, nil),
		engine,
		llmClient,
		nil,
	), nil
}
