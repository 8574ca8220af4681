package main

import (
	"github.com/spf13/cobra"
)

func newRulesetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ruleset",
		Short: "Print the ruleset version summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := root.ruleset()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), "", rs.Summarize())
		},
	}
}
