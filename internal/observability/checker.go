package observability

import "context"

// Checker is a dependency reported by the readiness probe.
// Check must honour ctx, which carries the probe timeout.
type Checker interface {
	// Name identifies the component in the readiness report (e.g. "postgres").
	Name() string
	// Check returns nil when the component is healthy.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function into a named Checker.
func CheckerFunc(name string, fn func(ctx context.Context) error) Checker {
	return checkerFunc{name: name, fn: fn}
}

type checkerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkerFunc) Name() string                    { return c.name }
func (c checkerFunc) Check(ctx context.Context) error { return c.fn(ctx) }
