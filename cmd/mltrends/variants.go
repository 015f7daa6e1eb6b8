package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guarzo/mltrends/internal/keywords"
)

func newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants <keyword>",
		Short: "Print the search variants tried for a keyword, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, v := range keywords.Variants(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}
