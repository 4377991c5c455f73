package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/skylab/internal/evaluation"
)

type evalOptions struct {
	flagsPath   string
	contextArg  string
	dropCycles  bool
	includeDeps bool
}

func (c *cli) newEvalCmd() *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval [flag-key...]",
		Short: "Evaluate a flag file against a context",
		Long: `Evaluate every flag in a flag file, or only the given keys and their
dependencies, and print the assigned variants as JSON.

The context is a JSON object given inline, as @path, or as "-" to read stdin.`,
		Example: `  skylab eval -f flags.yaml -c '{"user_id": "u1", "plan": "pro"}'
  skylab eval -f flags.json -c @context.json new-checkout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runEval(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.flagsPath, "flags", "f", "", "Path to a JSON or YAML flag file")
	cmd.Flags().StringVarP(&opts.contextArg, "context", "c", "{}", "Evaluation context: inline JSON, @path or -")
	cmd.Flags().BoolVar(&opts.dropCycles, "drop-cycles", false, "Drop flags in dependency cycles instead of failing")
	cmd.Flags().BoolVar(&opts.includeDeps, "include-deps", false, "Also print the variants of dependencies")
	_ = cmd.MarkFlagRequired("flags")

	return cmd
}

func (c *cli) runEval(cmd *cobra.Command, opts *evalOptions, keys []string) error {
	flags, err := loadFlags(opts.flagsPath)
	if err != nil {
		return err
	}

	rawCtx, err := readArgument(opts.contextArg, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read context: %w", err)
	}
	evalCtx, err := evaluation.ParseContext(rawCtx)
	if err != nil {
		return err
	}

	if opts.dropCycles {
		var dropped []string
		flags, dropped = evaluation.SortDroppingCycles(flags, c.logger)
		if len(dropped) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "dropped flags in dependency cycles: %v\n", dropped)
		}
	}

	engine := evaluation.New(c.logger)
	defer engine.Close()

	results, err := engine.EvaluateFlags(evalCtx, flags, keys...)
	if err != nil {
		return err
	}

	if len(keys) > 0 && !opts.includeDeps {
		results = requested(results, keys)
	}
	return writeJSON(cmd.OutOrStdout(), results)
}

// requested drops the variants of flags that were only evaluated as
// dependencies.
func requested(results evaluation.Results, keys []string) evaluation.Results {
	out := make(evaluation.Results, len(keys))
	for _, k := range keys {
		if v, ok := results[k]; ok {
			out[k] = v
		}
	}
	return out
}
