package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMeetingPriority(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("today is maximal", func(t *testing.T) {
		d := now
		assert.Equal(t, 100, MeetingPriority(&d, now))
	})

	t.Run("recent beats old", func(t *testing.T) {
		recent := now.AddDate(0, 0, -5)
		old := now.AddDate(0, 0, -60)
		assert.Greater(t, MeetingPriority(&recent, now), MeetingPriority(&old, now))
	})

	t.Run("future meetings are maximal", func(t *testing.T) {
		future := now.AddDate(0, 0, 10)
		assert.Equal(t, 100, MeetingPriority(&future, now))
	})

	t.Run("floors at zero", func(t *testing.T) {
		ancient := now.AddDate(-1, 0, 0)
		assert.Equal(t, 0, MeetingPriority(&ancient, now))
	})

	t.Run("undated meetings sink", func(t *testing.T) {
		assert.Equal(t, 0, MeetingPriority(nil, now))
	})
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 20*time.Second, RetryDelay(1))
	assert.Equal(t, 40*time.Second, RetryDelay(2))
	assert.Equal(t, 80*time.Second, RetryDelay(3))
}
