package evaluation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// CycleError reports flags whose dependencies form a cycle.
type CycleError struct {
	// Cycle holds the keys on the dependency path when the cycle was found,
	// sorted.
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("detected a cycle between flags [%s]", strings.Join(e.Cycle, ", "))
}

func newCycleError(path map[string]struct{}) *CycleError {
	keys := make([]string, 0, len(path))
	for k := range path {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &CycleError{Cycle: keys}
}

// frame is one level of the explicit depth-first stack.
type frame struct {
	flag *Flag
	next int // index of the next dependency to visit
}

// TopologicalSort orders flags so that every flag follows all of its
// dependencies. When keys is empty every flag is a starting point, otherwise
// only keys and their transitive dependencies are returned. Independent flags
// keep input order. Dependencies on unknown flags are ignored.
func TopologicalSort(flags []Flag, keys ...string) ([]Flag, error) {
	available := make(map[string]*Flag, len(flags))
	order := make([]string, 0, len(flags))
	for i := range flags {
		if _, seen := available[flags[i].Key]; !seen {
			order = append(order, flags[i].Key)
		}
		available[flags[i].Key] = &flags[i]
	}

	if len(keys) == 0 {
		keys = order
	}

	result := make([]Flag, 0, len(available))
	for _, key := range keys {
		var err error
		result, err = parentTraversal(key, available, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// parentTraversal appends key and its not yet emitted dependencies to out,
// parents first. Emitted flags are removed from available.
func parentTraversal(key string, available map[string]*Flag, out []Flag) ([]Flag, error) {
	root, ok := available[key]
	if !ok {
		return out, nil
	}
	if len(root.Dependencies) == 0 {
		delete(available, key)
		return append(out, *root), nil
	}

	path := map[string]struct{}{root.Key: {}}
	stack := []frame{{flag: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.next == len(top.flag.Dependencies) {
			out = append(out, *top.flag)
			delete(path, top.flag.Key)
			delete(available, top.flag.Key)
			stack = stack[:len(stack)-1]
			continue
		}

		depKey := top.flag.Dependencies[top.next]
		top.next++

		if _, onPath := path[depKey]; onPath {
			return nil, newCycleError(path)
		}

		dep, ok := available[depKey]
		if !ok {
			continue
		}
		if len(dep.Dependencies) == 0 {
			delete(available, depKey)
			out = append(out, *dep)
			continue
		}

		path[depKey] = struct{}{}
		stack = append(stack, frame{flag: dep})
	}

	return out, nil
}

// SortDroppingCycles orders flags, removing every flag that takes part in a
// dependency cycle. It returns the ordered remainder and the dropped keys.
// Flags that merely depend on a dropped flag are kept; their conditions on
// the dropped flag's result see an absent value.
func SortDroppingCycles(flags []Flag, logger *slog.Logger) ([]Flag, []string) {
	if logger == nil {
		logger = slog.Default()
	}

	remaining := flags
	var dropped []string

	for {
		ordered, err := TopologicalSort(remaining)
		if err == nil {
			return ordered, dropped
		}

		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			// TopologicalSort only fails with cycles.
			return nil, dropped
		}

		logger.Warn("dropping flags with cyclic dependencies",
			"cycle", cycleErr.Cycle,
		)

		inCycle := newStringSet(cycleErr.Cycle)
		kept := make([]Flag, 0, len(remaining))
		for _, f := range remaining {
			if inCycle.has(f.Key) {
				continue
			}
			kept = append(kept, f)
		}
		dropped = append(dropped, cycleErr.Cycle...)
		remaining = kept
	}
}
