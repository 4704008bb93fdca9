package cli

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/CEE-TEE/ggshield/internal/cache"
	"github.com/CEE-TEE/ggshield/internal/config"
	"github.com/CEE-TEE/ggshield/internal/filter"
	"github.com/CEE-TEE/ggshield/internal/gitctx"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the found-secrets cache",
}

func openCache(cmd *cobra.Command, enabled bool) (*cache.Cache, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir, nil)
	if err != nil {
		return nil, err
	}
	path := resolveCachePath(cmd.Context(), cfg, gitctx.ExecRunner{Dir: dir}, true)
	c, err := cache.New(enabled && cfg.Cache.Enabled, path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the secrets found by previous scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd, true)
		if err != nil {
			return err
		}
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics and the last found secrets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd, true)
		if err != nil {
			return err
		}
		if !c.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
			return nil
		}
		stats, err := c.GetStats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		data, err := jsoniter.MarshalIndent(struct {
			cache.Stats
			LastFoundSecrets []filter.IgnoredMatch `json:"last_found_secrets"`
		}{stats, c.LastFoundSecrets()}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
