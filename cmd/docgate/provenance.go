package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dgallion1/docgate/internal/normalize"
)

func newProvenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provenance RESULT.json [SECTION]",
		Short: "Show where each section of a result came from",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var res struct {
				Provenance normalize.Provenance `json:"provenance"`
			}
			if err := json.Unmarshal(data, &res); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if len(res.Provenance) == 0 {
				return fmt.Errorf("no provenance in %s", args[0])
			}

			w := cmd.OutOrStdout()
			if len(args) == 2 {
				entry, ok := res.Provenance[args[1]]
				if !ok {
					fmt.Fprintf(w, "section %q not found, available:\n", args[1])
					for _, id := range sortedIDs(res.Provenance) {
						fmt.Fprintf(w, "  - %s\n", id)
					}
					return fmt.Errorf("unknown section %q", args[1])
				}
				printEntry(w, args[1], entry, 0)
				return nil
			}

			fmt.Fprintf(w, "%d sections tracked\n", len(res.Provenance))
			for _, id := range sortedIDs(res.Provenance) {
				printEntry(w, id, res.Provenance[id], 100)
			}
			return nil
		},
	}
}

func printEntry(w io.Writer, id string, e normalize.Entry, snippetMax int) {
	snippet := []rune(e.Snippet)
	if snippetMax > 0 && len(snippet) > snippetMax {
		snippet = append(snippet[:snippetMax], '…')
	}
	fmt.Fprintf(w, "\n%s\n", id)
	fmt.Fprintf(w, "  source title     : %q\n", e.SourceTitle)
	fmt.Fprintf(w, "  normalized title : %q\n", e.NormalizedTitle)
	fmt.Fprintf(w, "  confidence       : %.2f (%s, level %d)\n", e.Confidence, e.Method, e.Level)
	fmt.Fprintf(w, "  paragraphs       : %d\n", e.ParagraphCount)
	fmt.Fprintf(w, "  snippet          : %q\n", string(snippet))
	if len(e.Collisions) > 0 {
		fmt.Fprintf(w, "  collisions       : %v\n", e.Collisions)
	}
}

func sortedIDs(p normalize.Provenance) []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
