package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ferro-labs/semcache"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			backend, err := semcache.OpenBackend(cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			stats, err := backend.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nHits:    %d\nMisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			backend, err := semcache.OpenBackend(cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()

			if err := backend.Clear(cmd.Context(), expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Fprintln(cmd.OutOrStdout(), "Expired cache entries cleared.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+configEnv+")")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
