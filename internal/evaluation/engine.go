package evaluation

import (
	"fmt"
	"log/slog"

	"github.com/maypok86/otter"
)

// defaultPatternCacheSize bounds the number of compiled regex patterns kept
// by an Engine.
const defaultPatternCacheSize = 1024

// Engine evaluates ordered flags against a context.
//
// An Engine holds no per-call state and is safe for concurrent use. The only
// shared structure is the compiled regex cache, which is itself safe for
// concurrent access.
type Engine struct {
	logger   *slog.Logger // Dedicated logger instance (DI)
	patterns otter.Cache[string, *compiledPattern]
}

// New creates a new Engine.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	patterns, err := otter.MustBuilder[string, *compiledPattern](defaultPatternCacheSize).Build()
	if err != nil {
		// The builder only fails on invalid static configuration.
		panic(fmt.Sprintf("evaluation: failed to build pattern cache: %v", err))
	}

	return &Engine{
		logger:   logger,
		patterns: patterns,
	}
}

// Close releases the resources held by the pattern cache.
func (e *Engine) Close() {
	e.patterns.Close()
}

// Evaluate resolves every flag, in the given order, against ctx.
//
// Flags must already be ordered so that dependencies come first (see
// TopologicalSort). Each result is recorded before the next flag is
// evaluated, so later flags can select "result.<flag>.<field>". Flags that
// resolve to no variant are absent from the returned map.
func (e *Engine) Evaluate(ctx Context, flags []Flag) Results {
	results := make(Results, len(flags))
	target := Target{Context: ctx, Result: results}

	for i := range flags {
		flag := &flags[i]

		variant, ok := e.evaluateFlag(target, flag)
		if !ok {
			e.logger.Debug("flag evaluation returned no variant", "flag", flag.Key)
			continue
		}
		results[flag.Key] = variant
	}

	e.logger.Debug("evaluation completed",
		"flags", len(flags),
		"assigned", len(results),
	)
	return results
}

// EvaluateFlags orders flags and evaluates them. When keys are given, only
// those flags and their transitive dependencies are evaluated. A dependency
// cycle is returned as *CycleError and nothing is evaluated.
func (e *Engine) EvaluateFlags(ctx Context, flags []Flag, keys ...string) (Results, error) {
	ordered, err := TopologicalSort(flags, keys...)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, ordered), nil
}

func (e *Engine) evaluateFlag(target Target, flag *Flag) (Variant, bool) {
	for _, seg := range flag.Segments {
		variant, ok := e.evaluateSegment(target, flag, seg)
		if !ok {
			continue
		}

		// First matching segment wins: flag, segment and variant metadata
		// are merged in that precedence order.
		variant.Metadata = mergeMetadata(flag.Metadata, seg.Metadata, variant.Metadata)
		return variant, true
	}
	return Variant{}, false
}

// evaluateSegment reports the variant a segment resolves to. It returns false
// when the conditions do not match or the bucketed variant key is unknown.
func (e *Engine) evaluateSegment(target Target, flag *Flag, seg Segment) (Variant, bool) {
	if !e.matchSegment(target, seg) {
		return Variant{}, false
	}

	key := e.Bucket(target, seg)
	variant, ok := flag.Variants[key]
	if !ok {
		e.logger.Debug("segment matched but variant is unknown",
			"flag", flag.Key,
			"variant", key,
		)
		return Variant{}, false
	}
	if variant.Key == "" {
		variant.Key = key
	}
	return variant, true
}

// matchSegment applies the OR of AND groups. Nil conditions always match.
func (e *Engine) matchSegment(target Target, seg Segment) bool {
	if seg.Conditions == nil {
		return true
	}

	for _, group := range seg.Conditions {
		matched := true
		for _, cond := range group {
			if !e.MatchCondition(target, cond) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// mergeMetadata copies bags left to right into a fresh map. An empty merge
// yields nil.
func mergeMetadata(bags ...map[string]Value) map[string]Value {
	var merged map[string]Value
	for _, bag := range bags {
		for k, v := range bag {
			if merged == nil {
				merged = make(map[string]Value)
			}
			merged[k] = v
		}
	}
	return merged
}
