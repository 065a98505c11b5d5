package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Ingest files and directories",
	Long: `Extracts, chunks, embeds and indexes each file. Directories are walked
recursively and only files with an allowed extension are ingested. Files that
are unchanged since they were last ingested are skipped; a document that failed
part-way resumes where it stopped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(func(ctx context.Context, s *session, c *Components) error {
			results, err := ingestPaths(ctx, c, args)
			if err != nil {
				return err
			}
			if err := cli.WritePipelineResults(cmd.OutOrStdout(), results, s.format); err != nil {
				return err
			}
			if n := countFailed(results); n > 0 {
				return fmt.Errorf("%d of %d documents failed", n, len(results))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

// ingestPaths processes explicit files together, then each directory in turn.
func ingestPaths(ctx context.Context, c *Components, paths []string) ([]*models.PipelineResult, error) {
	var files, dirs []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}

	var results []*models.PipelineResult
	if len(files) > 0 {
		res, err := c.Coordinator.ProcessFiles(ctx, files)
		results = append(results, res...)
		if err != nil {
			return results, err
		}
	}
	for _, dir := range dirs {
		res, err := c.Coordinator.ProcessDirectory(ctx, dir)
		results = append(results, res...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func countFailed(results []*models.PipelineResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil || (!r.Skipped && r.Status != models.StatusCompleted) {
			n++
		}
	}
	return n
}
