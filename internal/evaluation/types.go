package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxDistributionValue is the exclusive upper bound of the distribution space.
// A distribution range of [0, MaxDistributionValue) covers 100% of an allocation.
const MaxDistributionValue = 42949673

// Flag is a named targeting rule producing at most one variant per evaluation.
type Flag struct {
	// Key must be unique within a flag set.
	Key string `json:"key"`

	// Variants are the possible outcomes, indexed by variant key.
	Variants map[string]Variant `json:"variants"`

	// Segments are evaluated in order; the first match wins.
	Segments []Segment `json:"segments"`

	// Dependencies lists flags that must be evaluated before this one.
	Dependencies []string `json:"dependencies,omitempty"`

	// Metadata is merged into every variant this flag resolves to.
	Metadata map[string]Value `json:"metadata,omitempty"`
}

// Segment is an ordered targeting rule within a flag.
type Segment struct {
	// Bucket splits matching traffic. Nil means the segment is fully rolled out.
	Bucket *Bucket `json:"bucket,omitempty"`

	// Conditions is an OR of AND groups. Nil matches unconditionally,
	// while an empty (non-nil) slice never matches. No omitempty: an empty
	// slice must survive encoding as [] and nil as null.
	Conditions [][]Condition `json:"conditions"`

	// Variant is the default variant key used when bucketing yields nothing.
	Variant string `json:"variant,omitempty"`

	Metadata map[string]Value `json:"metadata,omitempty"`
}

// Bucket is the hashing configuration used to split traffic inside a segment.
type Bucket struct {
	Selector    []string     `json:"selector"`
	Salt        string       `json:"salt"`
	Allocations []Allocation `json:"allocations"`
}

// Allocation is a band of the 0-99 allocation space.
type Allocation struct {
	Range         Range          `json:"range"`
	Distributions []Distribution `json:"distributions"`
}

// Distribution maps a band of the distribution space to a variant.
type Distribution struct {
	Variant string `json:"variant"`
	Range   Range  `json:"range"`
}

// Range is a half-open integer interval [Start, End). On the wire it is a
// two element array.
type Range struct {
	Start int64
	End   int64
}

// Contains reports whether v lies within [Start, End).
func (r Range) Contains(v int64) bool {
	return v >= r.Start && v < r.End
}

// MarshalJSON implements json.Marshaler.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{r.Start, r.End})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Range) UnmarshalJSON(data []byte) error {
	var bounds []int64
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("range must be an array of two integers: %w", err)
	}
	if len(bounds) != 2 {
		return fmt.Errorf("range must have exactly two bounds, got %d", len(bounds))
	}
	r.Start, r.End = bounds[0], bounds[1]
	return nil
}

// Condition compares the value at Selector against Values using Op.
// Values has set semantics: duplicates and order are irrelevant.
type Condition struct {
	Selector []string `json:"selector"`
	Op       Operator `json:"op"`
	Values   []string `json:"values"`
}

// Variant is the named outcome a context can be assigned to.
type Variant struct {
	Key      string           `json:"key"`
	Value    Value            `json:"value"`
	Payload  Value            `json:"payload"`
	Metadata map[string]Value `json:"metadata,omitempty"`
}

// MarshalJSON omits null value and payload fields.
func (v Variant) MarshalJSON() ([]byte, error) {
	type wire struct {
		Key      string           `json:"key"`
		Value    *Value           `json:"value,omitempty"`
		Payload  *Value           `json:"payload,omitempty"`
		Metadata map[string]Value `json:"metadata,omitempty"`
	}
	out := wire{Key: v.Key, Metadata: v.Metadata}
	if !v.Value.IsNull() {
		out.Value = &v.Value
	}
	if !v.Payload.IsNull() {
		out.Payload = &v.Payload
	}
	return json.Marshal(out)
}

// ExperimentKey returns the experiment key carried in the variant metadata,
// or the empty string.
func (v Variant) ExperimentKey() string {
	if ek, ok := v.Metadata["experimentKey"]; ok {
		if s, ok := ek.AsString(); ok {
			return s
		}
	}
	return ""
}

// Select implements Selectable. Only "key", "value" and "metadata" are
// selectable on a variant.
func (v Variant) Select(key string) (Value, bool) {
	switch key {
	case "key":
		return String(v.Key), true
	case "value":
		return v.Value, !v.Value.IsNull()
	case "metadata":
		if v.Metadata == nil {
			return Value{}, false
		}
		return Map(v.Metadata), true
	default:
		return Value{}, false
	}
}

// Child implements Selectable. Metadata is the only nested branch.
func (v Variant) Child(key string) (Selectable, bool) {
	if key != "metadata" || v.Metadata == nil {
		return nil, false
	}
	return Map(v.Metadata), true
}

// AsValue converts the selectable fields of the variant into a map value.
func (v Variant) AsValue() Value {
	m := map[string]Value{"key": String(v.Key)}
	if !v.Value.IsNull() {
		m["value"] = v.Value
	}
	if v.Metadata != nil {
		m["metadata"] = Map(v.Metadata)
	}
	return Map(m)
}

// ErrInvalidFlag is wrapped by every error returned from Flag.Validate.
var ErrInvalidFlag = errors.New("invalid flag configuration")

// Validate reports structural problems in the flag definition. Evaluation
// never calls it; it is meant for the places that accept configuration.
func (f *Flag) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidFlag)
	}

	for _, dep := range f.Dependencies {
		if dep == f.Key {
			return fmt.Errorf("%w: flag %q depends on itself", ErrInvalidFlag, f.Key)
		}
	}

	for k, v := range f.Variants {
		if v.Key != "" && v.Key != k {
			return fmt.Errorf("%w: variant %q is indexed under %q", ErrInvalidFlag, v.Key, k)
		}
	}

	for i, seg := range f.Segments {
		if seg.Variant != "" {
			if _, ok := f.Variants[seg.Variant]; !ok {
				return fmt.Errorf("%w: segment %d references unknown variant %q", ErrInvalidFlag, i, seg.Variant)
			}
		}

		for _, group := range seg.Conditions {
			for _, cond := range group {
				if !cond.Op.Valid() {
					return fmt.Errorf("%w: segment %d uses unknown operator %q", ErrInvalidFlag, i, cond.Op)
				}
				if len(cond.Selector) == 0 {
					return fmt.Errorf("%w: segment %d has a condition without selector", ErrInvalidFlag, i)
				}
			}
		}

		if seg.Bucket == nil {
			continue
		}
		if len(seg.Bucket.Selector) == 0 {
			return fmt.Errorf("%w: segment %d bucket has no selector", ErrInvalidFlag, i)
		}
		for _, alloc := range seg.Bucket.Allocations {
			if err := validateRange(alloc.Range, 100); err != nil {
				return fmt.Errorf("%w: segment %d allocation: %v", ErrInvalidFlag, i, err)
			}
			for _, dist := range alloc.Distributions {
				if err := validateRange(dist.Range, MaxDistributionValue); err != nil {
					return fmt.Errorf("%w: segment %d distribution: %v", ErrInvalidFlag, i, err)
				}
				if _, ok := f.Variants[dist.Variant]; !ok {
					return fmt.Errorf("%w: segment %d distribution references unknown variant %q", ErrInvalidFlag, i, dist.Variant)
				}
			}
		}
	}

	return nil
}

func validateRange(r Range, upper int64) error {
	if r.Start < 0 || r.End > upper || r.Start > r.End {
		return fmt.Errorf("range [%d, %d) must lie within [0, %d]", r.Start, r.End, upper)
	}
	return nil
}
