package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dbchat-backend/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or write dbchat configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	// Runs without an existing config
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "dbchat.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "port: %d\n", cfg.Port)
		fmt.Fprintf(out, "llm_base_url: %s\n", cfg.LLMBaseURL)
		fmt.Fprintf(out, "llm_api_key: %s\n", mask(cfg.LLMAPIKey))
		fmt.Fprintf(out, "default_model: %s\n", cfg.DefaultModel)
		fmt.Fprintf(out, "models: %v\n", cfg.Models)
		fmt.Fprintf(out, "temperature: %.2f\n", cfg.Temperature)
		fmt.Fprintf(out, "max_tokens: %d\n", cfg.MaxTokens)
		fmt.Fprintf(out, "agent_max_iterations: %d\n", cfg.AgentMaxIterations)
		fmt.Fprintf(out, "query_timeout_sec: %d\n", cfg.QueryTimeoutSec)
		fmt.Fprintf(out, "session_idle_timeout_min: %d\n", cfg.SessionIdleTimeoutMin)
		fmt.Fprintf(out, "upload_dir: %s\n", cfg.UploadDir)
		fmt.Fprintf(out, "sample_db_path: %s\n", cfg.SampleDBPath)
		return nil
	},
}

func mask(s string) string {
	if len(s) <= 8 {
		if s == "" {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
