package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/siqueiraa/HubSync/pkg/config"
	"github.com/siqueiraa/HubSync/pkg/journal"
)

func newWatermarkCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watermark <entity-type>",
		Short: "Print the delta cutoff the next run would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(opts.configPath)
			if err != nil {
				return err
			}
			mark, err := resolver(cfg).Resolve(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if mark.File != "" {
				fmt.Fprintf(out, "file:  %s\n", mark.File)
			}
			if mark.IsFull() {
				fmt.Fprintln(out, "since: none (full sync)")
				return nil
			}
			fmt.Fprintf(out, "since: %s\n", mark.Since.Format(time.RFC3339))
			return nil
		},
	}
}

type historyOptions struct {
	*rootOptions
	limit int
}

func newHistoryCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &historyOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <entity-type>",
		Short: "Print the journaled runs of an entity type, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("%w: journal.path", config.ErrMissingSetting)
			}

			j, err := journal.Open(filepath.Join(cfg.WebRootPath, cfg.Journal.Path))
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.History(args[0], opts.limit)
			if err != nil {
				return err
			}
			return printHistory(cmd, entries)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of runs (0 for all)")
	return cmd
}

func printHistory(cmd *cobra.Command, entries []journal.Entry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tWATERMARK\tFETCHED\tWRITTEN\tSKIPPED\tDROPPED\tFILES\tDURATION\tERROR")
	for _, e := range entries {
		wm := "-"
		if !e.Watermark.IsZero() {
			wm = e.Watermark.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			e.StartedAt.Format(time.RFC3339), wm, e.Fetched, e.Written, e.Skipped, e.Dropped,
			len(e.Files), e.Duration.Round(time.Millisecond), e.Error)
	}
	return w.Flush()
}
