// Package main provides the semcache binary: an OpenAI-compatible HTTP
// server that answers from the cache when it can, plus config and cache
// maintenance commands.
package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/ferro-labs/semcache"
	"github.com/ferro-labs/semcache/internal/version"
)

const configEnv = "SEMCACHE_CONFIG"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "semcache",
		Short:         "Caching adapter for OpenAI-compatible LLM APIs",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads path, falling back to $SEMCACHE_CONFIG and then to the
// defaults. An empty provider key is taken from $OPENAI_API_KEY.
func loadConfig(path string) (*semcache.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	var cfg *semcache.Config
	if path == "" {
		def := semcache.DefaultConfig()
		cfg = &def
	} else {
		loaded, err := semcache.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := semcache.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := semcache.ValidateConfig(*cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Config is valid")
			fmt.Fprintf(out, "  Provider:   %s\n", cfg.Provider.Name)
			fmt.Fprintf(out, "  Cache:      %s\n", cfg.Cache.Backend)
			ttl := cfg.Cache.TTL
			if ttl == "" {
				ttl = "none"
			}
			fmt.Fprintf(out, "  TTL:        %s\n", ttl)
			fmt.Fprintf(out, "  Accounting: %t\n", cfg.Accounting.Enabled)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "semcache %s\n", version.String())
		},
	}
}
