package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
)

var statsLastN int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Add embedded chunks to the vector index",
	Long: `Moves every embedded chunk that is not yet searchable into the vector index.
Chunks whose stored vector cannot be decoded are quarantined for re-embedding.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			res, err := c.Syncer.Drain(ctx, s.cfg.Index.SyncBatchSize)
			if err != nil {
				return err
			}
			return cli.WriteSyncResult(cmd.OutOrStdout(), res, s.format)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show question statistics and the slowest pipeline stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if statsLastN < 0 {
			return fmt.Errorf("--last-n must not be negative, got %d", statsLastN)
		}
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			stats, err := c.Tracker.Statistics(ctx, statsLastN)
			if err != nil {
				return err
			}
			bottlenecks, err := c.Tracker.Bottlenecks(ctx)
			if err != nil {
				return err
			}
			return cli.WriteReport(cmd.OutOrStdout(), cli.Report{Statistics: stats, Bottlenecks: bottlenecks}, s.format)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("kotae version %s\n", version)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsLastN, "last-n", 100, "number of most recent questions to summarise (0 for all)")
	rootCmd.AddCommand(syncCmd, statsCmd, versionCmd)
}
