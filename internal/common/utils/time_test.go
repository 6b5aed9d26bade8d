package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		hasError bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"compound", "1h30m", time.Hour + 30*time.Minute, false},
		{"decimal", "1.5h", time.Hour + 30*time.Minute, false},

		{"single day", "1d", 24 * time.Hour, false},
		{"multiple days", "7d", 7 * 24 * time.Hour, false},
		{"zero days", "0d", 0, false},
		{"single week", "1w", 7 * 24 * time.Hour, false},
		{"negative day", "-1d", -24 * time.Hour, false},

		{"invalid format", "invalid", 0, true},
		{"empty string", "", 0, true},
		{"missing unit", "123", 0, true},
		{"fractional day", "1.5d", 0, true},
		{"trailing garbage", "2dd", 0, true},
		{"unknown unit", "3y", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDuration(tt.input)

			if tt.hasError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid duration")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func BenchmarkParseDuration_Days(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseDuration("7d")
	}
}
