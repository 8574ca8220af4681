package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docgate/internal/batch"
)

func newBatchCmd(root *rootOptions) *cobra.Command {
	var (
		opts batch.Options
		out  string
	)
	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Evaluate every matching document under DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Log = root.logger(cmd.ErrOrStderr())
			rs, err := root.ruleset()
			if err != nil {
				return err
			}

			rep, err := batch.Run(cmd.Context(), args[0], rs, opts)
			if err != nil {
				return err
			}
			if out != "" {
				if err := rep.Write(out); err != nil {
					return err
				}
				opts.Log.Info("reports written", "dir", out)
			}

			s := rep.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d: %d ok, %d errors, %d GO, %d NO-GO, avg coverage %.1f%%\n",
				s.TotalProcessed, s.Successful, s.Errors, s.GateGo, s.GateNoGo, s.AvgCoverage*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "force a gate profile for every document")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 4, "documents evaluated in parallel")
	cmd.Flags().StringVar(&opts.Pattern, "pattern", batch.DefaultPattern, "file name to look for")
	cmd.Flags().BoolVar(&opts.Parser.PDFFallbackPdftotext, "pdftotext", true, "fall back to pdftotext for unreadable PDFs")
	cmd.Flags().StringVarP(&out, "out", "o", "", "directory for batch_report.{json,md,html}")
	return cmd
}
