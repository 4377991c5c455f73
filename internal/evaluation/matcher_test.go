package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextTarget(t *testing.T, raw string) Target {
	t.Helper()

	ctx, err := ParseContext([]byte(raw))
	require.NoError(t, err)
	return Target{Context: ctx, Result: Results{}}
}

func cond(selector string, op Operator, values ...string) Condition {
	return Condition{Selector: []string{"context", selector}, Op: op, Values: values}
}

func TestMatchCondition_AbsentValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op     Operator
		values []string
		want   bool
	}{
		{op: OpIs, values: []string{NoneValue}, want: true},
		{op: OpIs, values: []string{"a"}, want: false},
		{op: OpIsNot, values: []string{NoneValue}, want: false},
		{op: OpIsNot, values: []string{"a"}, want: true},
		{op: OpContains, values: []string{NoneValue}, want: true},
		{op: OpDoesNotContain, values: []string{"a"}, want: true},
		{op: OpLessThan, values: []string{NoneValue}, want: true},
		{op: OpGreaterThanEquals, values: []string{"1"}, want: false},
		{op: OpVersionGreaterThan, values: []string{NoneValue}, want: true},
		{op: OpSetIs, values: []string{NoneValue}, want: true},
		{op: OpSetIsNot, values: []string{NoneValue}, want: true},
		{op: OpSetContains, values: []string{NoneValue}, want: true},
		{op: OpSetContainsAny, values: []string{"a"}, want: false},
		{op: OpSetDoesNotContain, values: []string{NoneValue}, want: false},
		{op: OpSetDoesNotContainAny, values: []string{"a"}, want: true},
		{op: OpRegexMatch, values: []string{NoneValue, ".*"}, want: false},
		{op: OpRegexDoesNotMatch, values: []string{".*"}, want: true},
		{op: Operator("unknown"), values: []string{NoneValue}, want: false},
	}

	engine, _ := newTestEngine(t)
	target := contextTarget(t, `{"present": "x", "nothing": null}`)

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, engine.MatchCondition(target, cond("missing", tt.op, tt.values...)))
			// An explicit JSON null is treated exactly like a missing key.
			assert.Equal(t, tt.want, engine.MatchCondition(target, cond("nothing", tt.op, tt.values...)))
		})
	}
}

func TestMatchCondition_Strings(t *testing.T) {
	t.Parallel()

	target := contextTarget(t, `{
		"name": "Hello World",
		"flag": true,
		"shout": "TRUE",
		"word": "Yes",
		"obj": {"b": 2, "a": "<x>"},
		"list": [1, "two"]
	}`)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{name: "Should match exact value in filter set", cond: cond("word", OpIs, "No", "Yes"), want: true},
		{name: "Should be case sensitive for non boolean values", cond: cond("word", OpIs, "yes"), want: false},
		{name: "Should compare booleans case insensitively", cond: cond("flag", OpIs, "True"), want: true},
		{name: "Should compare boolean strings case insensitively", cond: cond("shout", OpIs, "true"), want: true},
		{name: "Should not match a different boolean", cond: cond("flag", OpIs, "false"), want: false},
		{name: "Should stay case sensitive when no filter value is boolean", cond: cond("word", OpIs, "YES", "maybe"), want: false},
		{name: "Should find a boolean filter among other values", cond: cond("flag", OpIs, "maybe", "TRUE"), want: true},
		{name: "Should ignore case only against boolean filters", cond: cond("shout", OpIs, "yes", "FALSE"), want: false},
		{name: "Should negate case insensitive booleans", cond: cond("shout", OpIsNot, "true"), want: false},
		{name: "Should negate is", cond: cond("word", OpIsNot, "Yes"), want: false},
		{name: "Should match is not for other values", cond: cond("word", OpIsNot, "No"), want: true},
		{name: "Should match substring case insensitively", cond: cond("name", OpContains, "WORLD"), want: true},
		{name: "Should not match missing substring", cond: cond("name", OpContains, "moon"), want: false},
		{name: "Should negate contains", cond: cond("name", OpDoesNotContain, "moon"), want: true},
		{name: "Should coerce maps to canonical JSON", cond: cond("obj", OpIs, `{"a":"<x>","b":2}`), want: true},
		{name: "Should coerce lists to compact JSON", cond: cond("list", OpIs, `[1,"two"]`), want: true},
	}

	engine, _ := newTestEngine(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, engine.MatchCondition(target, tt.cond))
		})
	}
}

func TestMatchCondition_Comparisons(t *testing.T) {
	t.Parallel()

	target := contextTarget(t, `{
		"age": 5,
		"ten": "10",
		"big": "1e3",
		"word": "abc",
		"version": "1.2.3",
		"rc": "1.2.3-rc",
		"short": "1.2",
		"minor10": "1.10.0",
		"junk": "not-a-version"
	}`)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{name: "Should compare numbers numerically", cond: cond("age", OpLessThan, "10"), want: true},
		{name: "Should not compare parsed numbers as strings", cond: cond("ten", OpLessThan, "9"), want: false},
		{name: "Should accept equal values for less or equal", cond: cond("age", OpLessThanEquals, "5"), want: true},
		{name: "Should accept equal values for greater or equal", cond: cond("age", OpGreaterThanEquals, "5.0"), want: true},
		{name: "Should parse exponent notation", cond: cond("big", OpGreaterThan, "999"), want: true},
		{name: "Should succeed when any filter value satisfies", cond: cond("age", OpGreaterThan, "100", "1"), want: true},
		{name: "Should fall back to string comparison for non numbers", cond: cond("word", OpLessThan, "b"), want: true},
		// Documented quirk: each filter value falls back to string ordering on
		// its own, so "10" < "abc" holds even though 10 > 9 numerically.
		{name: "Should fall back per filter value", cond: cond("ten", OpLessThan, "9", "abc"), want: true},
		{name: "Should order versions numerically", cond: cond("minor10", OpVersionGreaterThan, "1.9.0"), want: true},
		{name: "Should order prerelease before release", cond: cond("rc", OpVersionLessThan, "1.2.3"), want: true},
		{name: "Should treat missing patch as zero", cond: cond("short", OpVersionGreaterThanEquals, "1.2.0"), want: true},
		{name: "Should compare versions strictly", cond: cond("version", OpVersionLessThan, "1.2.3"), want: false},
		{name: "Should accept equal versions for less or equal", cond: cond("version", OpVersionLessThanEquals, "1.2.3"), want: true},
		{name: "Should fall back to strings for invalid versions", cond: cond("junk", OpVersionGreaterThan, "1.0.0"), want: true},
	}

	engine, _ := newTestEngine(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, engine.MatchCondition(target, tt.cond))
		})
	}
}

func TestMatchCondition_Sets(t *testing.T) {
	t.Parallel()

	target := contextTarget(t, `{
		"abc": ["a", "b", "c"],
		"a": ["a"],
		"ab_json": "[\"b\", \"a\"]",
		"bools": [true],
		"with_null": ["a", null],
		"not_json": "a,b",
		"number": 5,
		"object": {"a": 1}
	}`)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{name: "Should contain all filter values", cond: cond("abc", OpSetContains, "a", "b"), want: true},
		{name: "Should not contain all when prop set is smaller", cond: cond("a", OpSetContains, "a", "b"), want: false},
		{name: "Should contain any filter value", cond: cond("a", OpSetContainsAny, "a", "b"), want: true},
		{name: "Should not contain any of disjoint values", cond: cond("a", OpSetContainsAny, "x", "y"), want: false},
		{name: "Should negate contains all", cond: cond("a", OpSetDoesNotContain, "a", "b"), want: true},
		{name: "Should negate contains any", cond: cond("a", OpSetDoesNotContainAny, "x"), want: true},
		{name: "Should compare set equality ignoring order", cond: cond("ab_json", OpSetIs, "a", "b"), want: true},
		{name: "Should ignore duplicate filter values", cond: cond("ab_json", OpSetIs, "a", "b", "a"), want: true},
		{name: "Should negate set equality", cond: cond("abc", OpSetIsNot, "a", "b"), want: true},
		{name: "Should match boolean elements case insensitively", cond: cond("bools", OpSetContains, "TRUE"), want: true},
		{name: "Should drop null elements", cond: cond("with_null", OpSetIs, "a"), want: true},
		{name: "Should not match unparsable strings", cond: cond("not_json", OpSetContainsAny, "a"), want: false},
		{name: "Should not match scalars", cond: cond("number", OpSetContainsAny, "5"), want: false},
		{name: "Should not match maps", cond: cond("object", OpSetIsNot, "a"), want: false},
	}

	engine, _ := newTestEngine(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, engine.MatchCondition(target, tt.cond))
		})
	}
}

func TestMatchCondition_Regex(t *testing.T) {
	t.Parallel()

	target := contextTarget(t, `{"code": "abc123"}`)

	tests := []struct {
		name       string
		cond       Condition
		want       bool
		wantLogMsg string
	}{
		{name: "Should match the full string", cond: cond("code", OpRegexMatch, `[a-z]+\d+`), want: true},
		{name: "Should not match a partial string", cond: cond("code", OpRegexMatch, "abc"), want: false},
		{name: "Should not let alternation escape anchoring", cond: cond("code", OpRegexMatch, "abc|xyz"), want: false},
		{name: "Should match when any pattern matches", cond: cond("code", OpRegexMatch, "x+", `abc\d{3}`), want: true},
		{name: "Should skip malformed patterns", cond: cond("code", OpRegexMatch, "(", ".*"), want: true},
		{name: "Should never match with only malformed patterns", cond: cond("code", OpRegexMatch, "a)(b"), want: false, wantLogMsg: "ignoring malformed regex pattern"},
		{name: "Should match does not match when nothing matches", cond: cond("code", OpRegexDoesNotMatch, "xyz"), want: true},
		{name: "Should fail does not match when a pattern matches", cond: cond("code", OpRegexDoesNotMatch, "xyz", ".*"), want: false},
		{name: "Should fail does not match on a malformed pattern", cond: cond("code", OpRegexDoesNotMatch, "["), want: false, wantLogMsg: "ignoring malformed regex pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, logBuffer := newTestEngine(t)

			assert.Equal(t, tt.want, engine.MatchCondition(target, tt.cond))
			if tt.wantLogMsg != "" {
				assert.Contains(t, logBuffer.String(), tt.wantLogMsg)
			}
		})
	}
}

func TestMatchCondition_SelectsResults(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	target := Target{
		Context: Context{},
		Result: Results{
			"parent": {
				Key:      "on",
				Value:    String("on"),
				Metadata: map[string]Value{"experimentKey": String("exp-1")},
			},
		},
	}

	assert.True(t, engine.MatchCondition(target, Condition{Selector: []string{"result", "parent", "key"}, Op: OpIs, Values: []string{"on"}}))
	assert.True(t, engine.MatchCondition(target, Condition{Selector: []string{"result", "parent", "metadata", "experimentKey"}, Op: OpIs, Values: []string{"exp-1"}}))
	assert.False(t, engine.MatchCondition(target, Condition{Selector: []string{"result", "parent", "payload"}, Op: OpIsNot, Values: []string{NoneValue}}))
	assert.True(t, engine.MatchCondition(target, Condition{Selector: []string{"result", "other", "key"}, Op: OpIs, Values: []string{NoneValue}}))
}
