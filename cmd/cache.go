package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheMaxAge time.Duration

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enrichment result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached results older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("offline"); err != nil {
			return err
		}
		c, err := initCache()
		if err != nil {
			return err
		}

		maxAge := cacheMaxAge
		if maxAge <= 0 {
			maxAge = cfg.Cache.TTL()
		}
		removed, err := c.Sweep(cmd.Context(), maxAge)
		if err != nil {
			return err
		}

		zap.L().Info("cache pruned",
			zap.String("dir", cfg.Cache.Dir),
			zap.Duration("max_age", maxAge),
			zap.Int("removed", removed),
		)
		fmt.Printf("removed %d cached results\n", removed)
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().DurationVar(&cacheMaxAge, "max-age", 0, "remove entries older than this (default cache.ttl_hours)")
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
