package evaluation

// Selectable is implemented by every entity a condition selector can walk:
// the context tree, nested map values, the running result map and variants.
type Selectable interface {
	// Select returns the leaf value stored under key.
	Select(key string) (Value, bool)
	// Child returns the nested selectable stored under key, if any.
	Child(key string) (Selectable, bool)
}

// Select walks root along path. Every step but the last must resolve to a
// selectable child. An empty path, a missing step or a null leaf all yield
// absent; none of them is an error.
func Select(root Selectable, path []string) (Value, bool) {
	if root == nil || len(path) == 0 {
		return Value{}, false
	}

	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current.Child(key)
		if !ok || next == nil {
			return Value{}, false
		}
		current = next
	}

	v, ok := current.Select(path[len(path)-1])
	if !ok || v.IsNull() {
		return Value{}, false
	}
	return v, true
}

// Select implements Selectable for map values. Other kinds select nothing.
func (v Value) Select(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	item, ok := v.m[key]
	return item, ok
}

// Child implements Selectable for map values.
func (v Value) Child(key string) (Selectable, bool) {
	item, ok := v.Select(key)
	if !ok || item.kind != KindMap {
		return nil, false
	}
	return item, true
}

// Target is the root object conditions are evaluated against. It exposes
// the external context under "context" and already computed flag results
// under "result".
type Target struct {
	Context Context
	Result  Results
}

// Select implements Selectable.
func (t Target) Select(key string) (Value, bool) {
	switch key {
	case "context":
		return t.Context.AsValue(), true
	case "result":
		return t.Result.AsValue(), true
	default:
		return Value{}, false
	}
}

// Child implements Selectable.
func (t Target) Child(key string) (Selectable, bool) {
	switch key {
	case "context":
		return t.Context, true
	case "result":
		return t.Result, true
	default:
		return nil, false
	}
}

// Results maps flag keys to the variant each flag resolved to.
type Results map[string]Variant

// Select implements Selectable. A flag that produced no variant is absent.
func (r Results) Select(key string) (Value, bool) {
	v, ok := r[key]
	if !ok {
		return Value{}, false
	}
	return v.AsValue(), true
}

// Child implements Selectable.
func (r Results) Child(key string) (Selectable, bool) {
	v, ok := r[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// AsValue converts the results into a map value.
func (r Results) AsValue() Value {
	m := make(map[string]Value, len(r))
	for k, v := range r {
		m[k] = v.AsValue()
	}
	return Map(m)
}
