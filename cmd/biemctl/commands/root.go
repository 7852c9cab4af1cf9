package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags, shared by every subcommand via openEnv.
	dataDir      string
	embedAPIKey  string
	embedBackend string
	llmAPIKey    string
	llmModel     string
	llmBaseURL   string
)

var rootCmd = &cobra.Command{
	Use:   "biemctl",
	Short: "CLI driver for the BIEM memory engine",
	Long: `biemctl - a command line interface for the Biologically-Inspired
Episodic Memory engine.

Data is stored locally: nodes and triples in a BadgerDB-backed kv store and
a SQLite relational store, vectors in an in-process brute-force index per scope.
Set an embedding API key via --embed-api-key or the DASHSCOPE_API_KEY /
OPENAI_API_KEY environment variables to enable encoding and recall; set an
LLM API key via --llm-api-key or OPENAI_API_KEY to enable entity/sentiment
extraction, conflict arbitration, consolidation, and knowledge extraction.
Without either key the engine still runs, but degrades the steps that need
them rather than failing (see the engine's degraded-node handling).

Examples:
  # Ingest a memory
  biemctl ingest "met Alex for coffee, talked about the new project" --scope alex --source user

  # Recall by text
  biemctl recall "coffee with Alex" --scope alex --top-k 5

  # Run background maintenance loops for a scope
  biemctl run --scope alex

  # Process a message through the knowledge pipeline
  biemctl knowledge process "I switched to dark roast coffee" --source user`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/biemctl)")
	rootCmd.PersistentFlags().StringVar(&embedAPIKey, "embed-api-key", "", "embedding provider API key (or DASHSCOPE_API_KEY/OPENAI_API_KEY env)")
	rootCmd.PersistentFlags().StringVar(&embedBackend, "embed-backend", "dashscope", "embedding backend: dashscope or openai")
	rootCmd.PersistentFlags().StringVar(&llmAPIKey, "llm-api-key", "", "LLM provider API key (or OPENAI_API_KEY env)")
	rootCmd.PersistentFlags().StringVar(&llmModel, "llm-model", "gpt-4o-mini", "LLM model name")
	rootCmd.PersistentFlags().StringVar(&llmBaseURL, "llm-base-url", "", "LLM API base URL (empty for the default OpenAI endpoint)")
}
