package tracker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriorities(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single", input: "A", want: []string{"A"}},
		{name: "trimmed with trailing comma", input: "A, B ,", want: []string{"A", "B"}},
		{name: "empty", input: "", want: []string{}},
		{name: "only comma", input: ",", want: []string{}},
		{name: "whitespace only", input: "  ,  ", want: []string{}},
		{name: "duplicates keep first", input: "B,A,B", want: []string{"B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePriorities(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{name: "short unchanged", input: "boom", wantLen: 4},
		{name: "exactly limit", input: strings.Repeat("a", 1000), wantLen: 1000},
		{name: "over limit", input: strings.Repeat("a", 1001), wantLen: 1000},
		{name: "multibyte", input: strings.Repeat("失", 1200), wantLen: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, MaxErrorMessageLength)
			assert.Equal(t, tt.wantLen, len([]rune(got)))
			assert.True(t, strings.HasPrefix(tt.input, got))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0.0", FormatSeconds(0))
	assert.Equal(t, "3.0", FormatSeconds(3))
	assert.Equal(t, "0.012", FormatSeconds(0.012))
	assert.Equal(t, "2.25", FormatSeconds(2.25))
}

func TestNewIntervalLimiter(t *testing.T) {
	t.Run("zero interval never blocks", func(t *testing.T) {
		l := NewIntervalLimiter(0)
		assert.Zero(t, l.Interval())

		start := time.Now()
		for i := 0; i < 100; i++ {
			require.NoError(t, l.Wait(context.Background()))
			l.Done()
		}

		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("first wait does not block", func(t *testing.T) {
		l := NewIntervalLimiter(time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		require.NoError(t, l.Wait(ctx))
	})

	t.Run("pause counts from completion", func(t *testing.T) {
		interval := 50 * time.Millisecond
		l := NewIntervalLimiter(interval)

		require.NoError(t, l.Wait(context.Background()))

		// A submission slower than the interval must still be followed by
		// a full pause.
		time.Sleep(2 * interval)
		l.Done()

		done := time.Now()
		require.NoError(t, l.Wait(context.Background()))
		assert.GreaterOrEqual(t, time.Since(done), interval-2*time.Millisecond)
	})

	t.Run("wait without done does not block", func(t *testing.T) {
		l := NewIntervalLimiter(time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		require.NoError(t, l.Wait(ctx))
		require.NoError(t, l.Wait(ctx))
	})

	t.Run("wait honors cancellation", func(t *testing.T) {
		l := NewIntervalLimiter(time.Hour)
		require.NoError(t, l.Wait(context.Background()))
		l.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		require.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
	})
}
