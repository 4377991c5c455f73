package evaluation

// Operator is one of the enumerated condition operators.
type Operator string

const (
	OpIs                       Operator = "is"
	OpIsNot                    Operator = "is not"
	OpContains                 Operator = "contains"
	OpDoesNotContain           Operator = "does not contain"
	OpLessThan                 Operator = "less"
	OpLessThanEquals           Operator = "less or equal"
	OpGreaterThan              Operator = "greater"
	OpGreaterThanEquals        Operator = "greater or equal"
	OpVersionLessThan          Operator = "version less"
	OpVersionLessThanEquals    Operator = "version less or equal"
	OpVersionGreaterThan       Operator = "version greater"
	OpVersionGreaterThanEquals Operator = "version greater or equal"
	OpSetIs                    Operator = "set is"
	OpSetIsNot                 Operator = "set is not"
	OpSetContains              Operator = "set contains"
	OpSetDoesNotContain        Operator = "set does not contain"
	OpSetContainsAny           Operator = "set contains any"
	OpSetDoesNotContainAny     Operator = "set does not contain any"
	OpRegexMatch               Operator = "regex match"
	OpRegexDoesNotMatch        Operator = "regex does not match"
)

// NoneValue is the filter token that matches an absent property.
const NoneValue = "(none)"

// Operators lists every supported operator.
var Operators = []Operator{
	OpIs, OpIsNot, OpContains, OpDoesNotContain,
	OpLessThan, OpLessThanEquals, OpGreaterThan, OpGreaterThanEquals,
	OpVersionLessThan, OpVersionLessThanEquals, OpVersionGreaterThan, OpVersionGreaterThanEquals,
	OpSetIs, OpSetIsNot, OpSetContains, OpSetDoesNotContain, OpSetContainsAny, OpSetDoesNotContainAny,
	OpRegexMatch, OpRegexDoesNotMatch,
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// IsSet reports whether op compares the property as a set of strings.
func (op Operator) IsSet() bool {
	switch op {
	case OpSetIs, OpSetIsNot, OpSetContains, OpSetDoesNotContain, OpSetContainsAny, OpSetDoesNotContainAny:
		return true
	default:
		return false
	}
}

func (op Operator) isNumeric() bool {
	switch op {
	case OpLessThan, OpLessThanEquals, OpGreaterThan, OpGreaterThanEquals:
		return true
	default:
		return false
	}
}

func (op Operator) isVersion() bool {
	switch op {
	case OpVersionLessThan, OpVersionLessThanEquals, OpVersionGreaterThan, OpVersionGreaterThanEquals:
		return true
	default:
		return false
	}
}

// satisfiedBy maps a three-way comparison result onto an ordering operator.
func (op Operator) satisfiedBy(cmp int) bool {
	switch op {
	case OpLessThan, OpVersionLessThan:
		return cmp < 0
	case OpLessThanEquals, OpVersionLessThanEquals:
		return cmp <= 0
	case OpGreaterThan, OpVersionGreaterThan:
		return cmp > 0
	case OpGreaterThanEquals, OpVersionGreaterThanEquals:
		return cmp >= 0
	default:
		return false
	}
}
