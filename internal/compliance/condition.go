package compliance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// EvaluateConditions decides whether a condition list matches a record.
//
// An empty list never matches: a rule with no conditions must not silently
// match everything. Conditions fold strictly left to right; each condition
// after the first combines with the running result through its own
// connector, with no precedence beyond declaration order.
//
// Evaluation never panics on bad input. Missing fields satisfy not-equals
// and fail every other operator; values that will not coerce to a number
// fail the numeric operators; an invalid regex pattern is a non-match.
func EvaluateConditions(logger *zap.Logger, conditions []Condition, record map[string]any) bool {
	if len(conditions) == 0 {
		return false
	}

	result := evaluateCondition(logger, conditions[0], record)
	for _, cond := range conditions[1:] {
		match := evaluateCondition(logger, cond, record)
		if cond.Connector == ConnectorOr {
			result = result || match
		} else {
			result = result && match
		}
	}
	return result
}

func evaluateCondition(logger *zap.Logger, cond Condition, record map[string]any) bool {
	value, present := lookupField(record, cond.Field)

	switch cond.Operator {
	case OpEquals:
		if !present {
			return false
		}
		return equalValues(value, cond.Value)

	case OpNotEquals:
		if !present {
			return true
		}
		return !equalValues(value, cond.Value)

	case OpGreaterThan:
		got, ok1 := toFloat(value)
		want, ok2 := toFloat(cond.Value)
		return present && ok1 && ok2 && got > want

	case OpLessThan:
		got, ok1 := toFloat(value)
		want, ok2 := toFloat(cond.Value)
		return present && ok1 && ok2 && got < want

	case OpContains:
		if !present {
			return false
		}
		return strings.Contains(toString(value), toString(cond.Value))

	case OpRegex:
		if !present {
			return false
		}
		re, err := regexp.Compile(toString(cond.Value))
		if err != nil {
			if logger != nil {
				logger.Warn("Invalid regex in rule condition",
					zap.String("field", cond.Field),
					zap.String("pattern", toString(cond.Value)),
					zap.Error(err),
				)
			}
			return false
		}
		return re.MatchString(toString(value))

	default:
		if logger != nil {
			logger.Warn("Unknown condition operator",
				zap.String("operator", string(cond.Operator)),
				zap.String("field", cond.Field),
			)
		}
		return false
	}
}

// lookupField resolves a dot-path into nested maps.
func lookupField(record map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current any = record
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equalValues compares loosely: numbers compare numerically regardless of
// concrete type, everything else by string form. Rule values arrive from
// YAML and JSON, so int/float64/string mismatches are the norm here.
func equalValues(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
