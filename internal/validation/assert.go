// Package validation holds constructor guards shared by the service packages.
package validation

import "fmt"

// AssertNotNil panics with "<component>: <name> cannot be nil" when ptr is nil.
// Missing mandatory dependencies are wiring bugs, so callers fail at startup
// instead of returning an error.
//
//	validation.AssertNotNil(engine, "controlapi", "evaluation engine")
func AssertNotNil[T any](ptr *T, component, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("%s: %s cannot be nil", component, name))
	}
}

// AssertNotEmpty panics when a mandatory string setting is empty.
func AssertNotEmpty(value, component, name string) {
	if value == "" {
		panic(fmt.Sprintf("%s: %s cannot be empty", component, name))
	}
}
