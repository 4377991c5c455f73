package evaluation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// stringSet is a set of strings with value semantics for equality checks.
type stringSet map[string]struct{}

func newStringSet(values []string) stringSet {
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s stringSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s stringSet) equal(other stringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.has(v) {
			return false
		}
	}
	return true
}

// MatchCondition evaluates a single condition against target.
//
// Absent properties follow a fixed truth table, set operators compare the
// property as a set of strings, and every other operator compares the
// property's string form against the filter values. Parse and coercion
// failures never escape: they make the condition not match.
func (e *Engine) MatchCondition(target Selectable, cond Condition) bool {
	filter := newStringSet(cond.Values)

	prop, ok := Select(target, cond.Selector)
	if !ok {
		return matchNull(cond.Op, filter)
	}

	if cond.Op.IsSet() {
		props, ok := coerceStringSet(prop)
		if !ok {
			return false
		}
		return matchSet(props, cond.Op, filter)
	}

	return e.matchString(prop.String(), cond.Op, filter)
}

func matchNull(op Operator, filter stringSet) bool {
	containsNone := filter.has(NoneValue)

	switch op {
	case OpIs, OpContains,
		OpLessThan, OpLessThanEquals, OpGreaterThan, OpGreaterThanEquals,
		OpVersionLessThan, OpVersionLessThanEquals, OpVersionGreaterThan, OpVersionGreaterThanEquals,
		OpSetIs, OpSetContains, OpSetContainsAny:
		return containsNone
	case OpIsNot, OpDoesNotContain, OpSetDoesNotContain, OpSetDoesNotContainAny:
		return !containsNone
	case OpRegexMatch:
		return false
	case OpRegexDoesNotMatch, OpSetIsNot:
		return true
	default:
		return false
	}
}

func matchSet(props stringSet, op Operator, filter stringSet) bool {
	switch op {
	case OpSetIs:
		return props.equal(filter)
	case OpSetIsNot:
		return !props.equal(filter)
	case OpSetContains:
		return matchesSetContainsAll(props, filter)
	case OpSetDoesNotContain:
		return !matchesSetContainsAll(props, filter)
	case OpSetContainsAny:
		return matchesSetContainsAny(props, filter)
	case OpSetDoesNotContainAny:
		return !matchesSetContainsAny(props, filter)
	default:
		return false
	}
}

func (e *Engine) matchString(prop string, op Operator, filter stringSet) bool {
	switch {
	case op == OpIs:
		return matchesIs(prop, filter)
	case op == OpIsNot:
		return !matchesIs(prop, filter)
	case op == OpContains:
		return matchesContains(prop, filter)
	case op == OpDoesNotContain:
		return !matchesContains(prop, filter)
	case op.isNumeric():
		return matchesComparable(prop, op, filter, compareNumbers)
	case op.isVersion():
		return matchesComparable(prop, op, filter, compareVersions)
	case op == OpRegexMatch:
		return e.matchesRegex(prop, filter)
	case op == OpRegexDoesNotMatch:
		return e.matchesNoRegex(prop, filter)
	default:
		return false
	}
}

// matchesIs compares case-insensitively only when the filter carries boolean
// tokens and the property itself is a boolean string.
func matchesIs(prop string, filter stringSet) bool {
	if containsBooleans(filter) {
		lower := strings.ToLower(prop)
		if lower == "true" || lower == "false" {
			for v := range filter {
				if strings.ToLower(v) == lower {
					return true
				}
			}
			return false
		}
	}
	return filter.has(prop)
}

// containsBooleans reports whether any filter value is "true" or "false",
// ignoring case.
func containsBooleans(filter stringSet) bool {
	for v := range filter {
		switch strings.ToLower(v) {
		case "true", "false":
			return true
		}
	}
	return false
}

func matchesContains(prop string, filter stringSet) bool {
	lower := strings.ToLower(prop)
	for v := range filter {
		if strings.Contains(lower, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func matchesSetContainsAll(props, filter stringSet) bool {
	if len(props) < len(filter) {
		return false
	}
	for v := range filter {
		if !matchesIs(v, props) {
			return false
		}
	}
	return true
}

func matchesSetContainsAny(props, filter stringSet) bool {
	for v := range filter {
		if matchesIs(v, props) {
			return true
		}
	}
	return false
}

// comparator returns the three-way comparison of a and b, or false when
// either side cannot be parsed.
type comparator func(a, b string) (int, bool)

// matchesComparable is satisfied when any filter value satisfies op. Each
// filter value is compared in the parsed domain when both sides parse, and as
// plain strings otherwise. Mixing domains can be surprising ("10" < "9" as
// strings), but it keeps parity with the other SDKs.
func matchesComparable(prop string, op Operator, filter stringSet, compare comparator) bool {
	for v := range filter {
		cmp, ok := compare(prop, v)
		if !ok {
			cmp = strings.Compare(prop, v)
		}
		if op.satisfiedBy(cmp) {
			return true
		}
	}
	return false
}

func compareNumbers(a, b string) (int, bool) {
	x, ok := parseNumber(a)
	if !ok {
		return 0, false
	}
	y, ok := parseNumber(b)
	if !ok {
		return 0, false
	}
	return compareFloats(x, y), true
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// compareFloats orders NaN above every other value and equal to itself.
func compareFloats(x, y float64) int {
	xNaN, yNaN := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xNaN && yNaN:
		return 0
	case xNaN:
		return 1
	case yNaN:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func compareVersions(a, b string) (int, bool) {
	x, ok := ParseVersion(a)
	if !ok {
		return 0, false
	}
	y, ok := ParseVersion(b)
	if !ok {
		return 0, false
	}
	return x.Compare(y), true
}

// matchesRegex reports whether any well-formed pattern fully matches prop.
func (e *Engine) matchesRegex(prop string, filter stringSet) bool {
	for p := range filter {
		re, ok := e.compile(p)
		if ok && re.MatchString(prop) {
			return true
		}
	}
	return false
}

// matchesNoRegex reports whether no pattern matches prop. A malformed
// pattern makes the whole operator fail.
func (e *Engine) matchesNoRegex(prop string, filter stringSet) bool {
	for p := range filter {
		re, ok := e.compile(p)
		if !ok || re.MatchString(prop) {
			return false
		}
	}
	return true
}

// compiledPattern caches both successful and failed compilations.
type compiledPattern struct {
	re *regexp.Regexp
}

// compile anchors pattern for a full-string match and memoises the result.
func (e *Engine) compile(pattern string) (*regexp.Regexp, bool) {
	if cached, ok := e.patterns.Get(pattern); ok {
		return cached.re, cached.re != nil
	}

	// The raw pattern is validated first so that an unbalanced group cannot
	// escape the anchoring wrapper.
	_, err := regexp.Compile(pattern)
	var re *regexp.Regexp
	if err == nil {
		re, err = regexp.Compile(`^(?:` + pattern + `)$`)
	}
	if err != nil {
		e.logger.Warn("ignoring malformed regex pattern",
			"pattern", pattern,
			"error", err,
		)
		re = nil
	}
	e.patterns.Set(pattern, &compiledPattern{re: re})
	return re, re != nil
}

// coerceStringSet turns a property into a set of strings. Lists are mapped
// element-wise (null elements are dropped); strings are parsed as JSON
// arrays. Anything else cannot be coerced.
func coerceStringSet(v Value) (stringSet, bool) {
	items, ok := v.AsList()
	if !ok {
		s, isString := v.AsString()
		if !isString {
			return nil, false
		}
		parsed, err := ParseJSON([]byte(s))
		if err != nil {
			return nil, false
		}
		if items, ok = parsed.AsList(); !ok {
			return nil, false
		}
	}

	set := make(stringSet, len(items))
	for _, item := range items {
		if item.IsNull() {
			continue
		}
		set[item.String()] = struct{}{}
	}
	return set, true
}
