package main

import (
	"github.com/spf13/cobra"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

// hashResult is what a segment bucket sees for one salted value.
type hashResult struct {
	Input        string `json:"input"`
	Hash         uint32 `json:"hash"`
	Allocation   int64  `json:"allocation"`
	Distribution int64  `json:"distribution"`
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <salt> <value>",
		Short: "Show the bucketing values of a salted value",
		Long: `Hash "<salt>/<value>" the way segment buckets do and print the
allocation value (0-99) and the distribution value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0] + "/" + args[1]
			allocation, distribution := evaluation.BucketValues(args[0], args[1])

			return writeJSON(cmd.OutOrStdout(), hashResult{
				Input:        input,
				Hash:         evaluation.Hash32(input),
				Allocation:   allocation,
				Distribution: distribution,
			})
		},
	}
}
