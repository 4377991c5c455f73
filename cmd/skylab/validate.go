package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

var errInvalidFiles = errors.New("one or more flag files are invalid")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file...>",
		Short: "Check flag files for schema, config and dependency errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false

			for _, path := range args {
				if err := validateFile(path); err != nil {
					failed = true
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s\n", path)
			}

			if failed {
				return errInvalidFiles
			}
			return nil
		},
	}
}

func validateFile(path string) error {
	flags, err := loadFlags(path)
	if err != nil {
		return err
	}
	if _, err := evaluation.TopologicalSort(flags); err != nil {
		return err
	}
	return nil
}
