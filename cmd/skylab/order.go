package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

func (c *cli) newOrderCmd() *cobra.Command {
	var (
		flagsPath  string
		dropCycles bool
	)

	cmd := &cobra.Command{
		Use:   "order [flag-key...]",
		Short: "Print the evaluation order of a flag file",
		Long: `Print flag keys one per line so that every flag follows its
dependencies. With keys, only those flags and their dependencies are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := loadFlags(flagsPath)
			if err != nil {
				return err
			}

			if dropCycles {
				var dropped []string
				flags, dropped = evaluation.SortDroppingCycles(flags, c.logger)
				for _, key := range dropped {
					fmt.Fprintf(cmd.ErrOrStderr(), "dropped %s\n", key)
				}
			}

			ordered, err := evaluation.TopologicalSort(flags, args...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range ordered {
				fmt.Fprintln(out, f.Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagsPath, "flags", "f", "", "Path to a JSON or YAML flag file")
	cmd.Flags().BoolVar(&dropCycles, "drop-cycles", false, "Drop flags in dependency cycles instead of failing")
	_ = cmd.MarkFlagRequired("flags")

	return cmd
}
