package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docgate/internal/ruleset"
)

type rootOptions struct {
	rulesetPath string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docgate",
		Short:         "Map bilan documents onto a canonical record and gate them for production",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.rulesetPath, "ruleset", os.Getenv("RULESET_PATH"), "ruleset YAML (default: embedded rhpro_v1)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	cmd.AddCommand(
		newParseCmd(opts),
		newBatchCmd(opts),
		newProvenanceCmd(),
		newRulesetCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *rootOptions) ruleset() (*ruleset.Ruleset, error) {
	rs, err := ruleset.LoadOrDefault(o.rulesetPath)
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}
	return rs, nil
}

// writeJSON writes v indented to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
