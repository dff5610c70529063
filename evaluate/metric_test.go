package evaluate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lumetric "github.com/lumetric/lumetric-go"
)

func metricInput(expected string, output map[string]any) MetricInput {
	return MetricInput{
		Item:   lumetric.DatasetItem{ExpectedOutput: expected},
		Output: output,
	}
}

func TestEquals(t *testing.T) {
	tests := []struct {
		name      string
		metric    Equals
		input     MetricInput
		wantValue float64
	}{
		{
			name:      "exact match",
			metric:    Equals{},
			input:     metricInput("Paris", map[string]any{"output": "Paris"}),
			wantValue: 1.0,
		},
		{
			name:      "case insensitive by default",
			metric:    Equals{},
			input:     metricInput("Paris", map[string]any{"output": "PARIS"}),
			wantValue: 1.0,
		},
		{
			name:      "case sensitive mismatch",
			metric:    Equals{CaseSensitive: true},
			input:     metricInput("Paris", map[string]any{"output": "PARIS"}),
			wantValue: 0,
		},
		{
			name:      "mismatch",
			metric:    Equals{},
			input:     metricInput("Paris", map[string]any{"output": "London"}),
			wantValue: 0,
		},
		{
			name:      "custom output key",
			metric:    Equals{Key: "answer"},
			input:     metricInput("42", map[string]any{"answer": 42}),
			wantValue: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := tt.metric.Score(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "equals", score.Name)
			assert.Equal(t, tt.wantValue, score.Value)
			if tt.wantValue == 0 {
				assert.NotEmpty(t, score.Reason)
			}
		})
	}

	t.Run("missing output key is an error", func(t *testing.T) {
		_, err := Equals{}.Score(metricInput("Paris", map[string]any{"answer": "Paris"}))
		assert.Error(t, err)
	})
}

func TestContains(t *testing.T) {
	tests := []struct {
		name      string
		metric    Contains
		input     MetricInput
		wantValue float64
	}{
		{
			name:      "substring match",
			metric:    Contains{},
			input:     metricInput("Paris", map[string]any{"output": "The capital is Paris."}),
			wantValue: 1.0,
		},
		{
			name:      "case insensitive by default",
			metric:    Contains{},
			input:     metricInput("paris", map[string]any{"output": "PARIS is the capital"}),
			wantValue: 1.0,
		},
		{
			name:      "case sensitive miss",
			metric:    Contains{CaseSensitive: true},
			input:     metricInput("paris", map[string]any{"output": "PARIS"}),
			wantValue: 0,
		},
		{
			name:      "no match",
			metric:    Contains{},
			input:     metricInput("Paris", map[string]any{"output": "London calling"}),
			wantValue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := tt.metric.Score(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "contains", score.Name)
			assert.Equal(t, tt.wantValue, score.Value)
		})
	}
}

func TestRegexMatch(t *testing.T) {
	t.Run("matches pattern", func(t *testing.T) {
		metric, err := NewRegexMatch(`^\d{4}-\d{2}-\d{2}$`)
		require.NoError(t, err)

		score, err := metric.Score(metricInput("", map[string]any{"output": "2024-06-01"}))
		require.NoError(t, err)
		assert.Equal(t, "regex_match", score.Name)
		assert.Equal(t, 1.0, score.Value)
	})

	t.Run("no match carries a reason", func(t *testing.T) {
		metric, err := NewRegexMatch(`^\d+$`)
		require.NoError(t, err)

		score, err := metric.Score(metricInput("", map[string]any{"output": "not a number"}))
		require.NoError(t, err)
		assert.Zero(t, score.Value)
		assert.NotEmpty(t, score.Reason)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewRegexMatch(`[unclosed`)
		assert.Error(t, err)
	})
}
