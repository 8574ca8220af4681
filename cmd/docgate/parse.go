package main

import (
	"github.com/spf13/cobra"

	"github.com/dgallion1/docgate/internal/engine"
	"github.com/dgallion1/docgate/internal/parser"
)

func newParseCmd(root *rootOptions) *cobra.Command {
	var (
		profile  string
		out      string
		segments bool
		pdftotxt bool
	)
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Evaluate one document and print the result JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd.ErrOrStderr())
			rs, err := root.ruleset()
			if err != nil {
				return err
			}

			res, err := engine.ParseFile(args[0], rs, engine.Options{
				Profile:         profile,
				IncludeSegments: segments,
				Parser:          parser.Options{PDFFallbackPdftotext: pdftotxt},
			})
			if err != nil {
				return err
			}

			g := res.ProductionGate
			log.Info("evaluated",
				"file", args[0],
				"status", g.Status,
				"profile", g.ProfileID,
				"coverage", res.Report.CoverageRatio,
				"warnings", len(res.Report.Warnings))
			for _, w := range res.Report.Warnings {
				log.Debug("warning", "message", w)
			}
			return writeJSON(cmd.OutOrStdout(), out, res)
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "force a gate profile")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to this file instead of stdout")
	cmd.Flags().BoolVar(&segments, "segments", false, "include detected segments")
	cmd.Flags().BoolVar(&pdftotxt, "pdftotext", true, "fall back to pdftotext for unreadable PDFs")
	return cmd
}
