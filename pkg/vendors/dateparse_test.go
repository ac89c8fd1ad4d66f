package vendors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate_AcceptedFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-07-22T18:30:00Z", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"2025-07-22T18:30:00", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"2025-07-22 18:30:00", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"2025-07-22", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"Jul 22, 2025 6:30 PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"Jul 22, 2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"July 22, 2025 6:30 PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"July 22, 2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"Tuesday, July 22, 2025 6:30 PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"Tuesday, July 22, 2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"07/22/2025 6:30 PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"07/22/2025 18:30", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"07/22/2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"7/22/2025 6:30 PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
		{"7/22/2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"2025/07/22", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"22-Jul-2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"22 July 2025", time.Date(2025, 7, 22, 0, 0, 0, 0, time.UTC)},
		{"Jul 22 2025 6:30PM", time.Date(2025, 7, 22, 18, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := ParseDate(tt.in)
		require.NotNil(t, got, "expected %q to parse", tt.in)
		assert.True(t, tt.want.Equal(got.UTC()) || tt.want.Equal(*got),
			"%q parsed to %v, want %v", tt.in, got, tt.want)
	}
}

func TestParseDate_NeverGuesses(t *testing.T) {
	for _, in := range []string{"TBD", "TBA", "N/A", "", "   ", "not a date", "32/45/9999"} {
		assert.Nil(t, ParseDate(in), "expected %q to return nil", in)
	}
}

func TestParseDate_TimezoneSuffix(t *testing.T) {
	got := ParseDate("Jul 22, 2025 6:30 PM PST")
	require.NotNil(t, got)
	assert.Equal(t, 18, got.Hour())
}
