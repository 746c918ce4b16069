// Command npcsim runs the NPC decision simulation: characters receive
// stimuli, interpret them, and pick actions through their personalities.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/talgya/npc-cognition/internal/config"
)

var (
	configPath string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:           "npcsim",
		Short:         "Stimulus-driven NPC decision simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		},
	}
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NPCSIM_CONFIG"), "YAML config file (defaults built in)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd, decideCmd, toolsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("npcsim failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when one is named, then applies
// environment overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}
