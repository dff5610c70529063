package evaluate

import (
	"fmt"
	"regexp"
	"strings"

	lumetric "github.com/lumetric/lumetric-go"
)

// OutputKey is the task output key metrics read by default.
const OutputKey = "output"

// MetricInput is what a metric sees for one evaluated item.
type MetricInput struct {
	Item   lumetric.DatasetItem
	Output map[string]any
}

// ScoreResult is a named numeric score with an optional textual reason.
type ScoreResult struct {
	Name   string
	Value  float64
	Reason string
}

// Metric scores a task output against a dataset item.
type Metric interface {
	Name() string
	Score(input MetricInput) (ScoreResult, error)
}

// actual returns the task output value a metric should judge.
func (in MetricInput) actual(key string) (string, error) {
	if key == "" {
		key = OutputKey
	}
	value, ok := in.Output[key]
	if !ok {
		return "", fmt.Errorf("task output has no %q key", key)
	}
	return fmt.Sprint(value), nil
}

// expected returns the item's expected output as a string.
func (in MetricInput) expected() string {
	if in.Item.ExpectedOutput == nil {
		return ""
	}
	return fmt.Sprint(in.Item.ExpectedOutput)
}

// Equals scores 1.0 when the task output equals the expected output.
type Equals struct {
	// Key selects the task output entry to compare. Defaults to "output".
	Key string

	CaseSensitive bool
}

// Name implements Metric.
func (Equals) Name() string { return "equals" }

// Score implements Metric.
func (m Equals) Score(input MetricInput) (ScoreResult, error) {
	actual, err := input.actual(m.Key)
	if err != nil {
		return ScoreResult{}, err
	}
	expected := input.expected()

	if !m.CaseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	score := ScoreResult{Name: m.Name()}
	if actual == expected {
		score.Value = 1.0
	} else {
		score.Reason = fmt.Sprintf("expected %q, got %q", expected, actual)
	}
	return score, nil
}

// Contains scores 1.0 when the task output contains the expected output as
// a substring.
type Contains struct {
	Key           string
	CaseSensitive bool
}

// Name implements Metric.
func (Contains) Name() string { return "contains" }

// Score implements Metric.
func (m Contains) Score(input MetricInput) (ScoreResult, error) {
	actual, err := input.actual(m.Key)
	if err != nil {
		return ScoreResult{}, err
	}
	expected := input.expected()

	if !m.CaseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	score := ScoreResult{Name: m.Name()}
	if strings.Contains(actual, expected) {
		score.Value = 1.0
	} else {
		score.Reason = fmt.Sprintf("output does not contain %q", expected)
	}
	return score, nil
}

// RegexMatch scores 1.0 when the task output matches a pattern.
type RegexMatch struct {
	Key     string
	pattern *regexp.Regexp
}

// NewRegexMatch compiles the pattern into a RegexMatch metric.
func NewRegexMatch(pattern string) (*RegexMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("evaluate: invalid regex pattern: %w", err)
	}
	return &RegexMatch{pattern: re}, nil
}

// Name implements Metric.
func (*RegexMatch) Name() string { return "regex_match" }

// Score implements Metric.
func (m *RegexMatch) Score(input MetricInput) (ScoreResult, error) {
	actual, err := input.actual(m.Key)
	if err != nil {
		return ScoreResult{}, err
	}

	score := ScoreResult{Name: m.Name()}
	if m.pattern.MatchString(actual) {
		score.Value = 1.0
	} else {
		score.Reason = fmt.Sprintf("output does not match %q", m.pattern.String())
	}
	return score, nil
}
