package evaluation

import (
	"encoding/json"
	"fmt"
)

// Context describes the subject being evaluated (user and device
// attributes). It is built once by the caller and read-only afterward.
type Context map[string]Value

// NewContext converts native Go data into a Context.
func NewContext(attrs map[string]any) Context {
	ctx := make(Context, len(attrs))
	for k, v := range attrs {
		ctx[k] = ValueOf(v)
	}
	return ctx
}

// ParseContext decodes a JSON object into a Context.
func ParseContext(data []byte) (Context, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("context must be a JSON object, got %s", v.Kind())
	}
	return Context(m), nil
}

// Select implements Selectable.
func (c Context) Select(key string) (Value, bool) {
	v, ok := c[key]
	return v, ok
}

// Child implements Selectable.
func (c Context) Child(key string) (Selectable, bool) {
	v, ok := c[key]
	if !ok || v.Kind() != KindMap {
		return nil, false
	}
	return v, true
}

// AsValue returns the context as a map value.
func (c Context) AsValue() Value {
	return Map(c)
}

// MarshalJSON encodes the context canonically (sorted keys).
func (c Context) MarshalJSON() ([]byte, error) {
	return Map(c).MarshalJSON()
}

// Canonical returns the canonical JSON form of the context, used as a cache key.
func (c Context) Canonical() string {
	return Map(c).String()
}

var _ json.Marshaler = Context(nil)
