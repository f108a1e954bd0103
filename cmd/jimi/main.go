// Package main provides the CLI entry point for jimi, a conversational AI
// coding assistant that runs in the terminal.
//
// # Basic Usage
//
// Run a single task:
//
//	jimi run "add input validation to the signup handler"
//
// Start an interactive chat session:
//
//	jimi chat
//
// # Environment Variables
//
//   - JIMI_PROVIDER: LLM backend ("anthropic" or "openai")
//   - JIMI_API_KEY: API key for the selected backend
//   - JIMI_BASE_URL: override the API base URL (OpenAI-compatible endpoints)
//   - JIMI_MODEL_NAME: model to use
//   - JIMI_YOLO: skip all approval prompts
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig  string
	flagWorkdir string
	flagSpec    string
	flagModel   string
	flagYolo    bool
	flagVerbose bool
	flagMCP     string
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jimi",
		Short: "jimi - AI coding assistant for the terminal",
		Long: `jimi is a conversational AI coding assistant. It reads and edits files,
runs commands, and fetches documentation, asking for approval before
anything destructive.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT) and compatible endpoints.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file path (default: .jimi/config.yaml, then ~/.config/jimi/config.yaml)")
	pf.StringVarP(&flagWorkdir, "workdir", "C", ".", "Working directory for the session")
	pf.StringVar(&flagSpec, "spec", "", "Agent spec YAML (default: built-in general agent)")
	pf.StringVar(&flagModel, "model", "", "Model name override")
	pf.BoolVar(&flagYolo, "yolo", false, "Skip all approval prompts")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Show tool calls and token usage")
	pf.StringVar(&flagMCP, "mcp", "", "YAML file listing additional MCP servers to bridge")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildChatCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("jimi %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
