package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizer_Taxonomy(t *testing.T) {
	n := NewNormalizer()
	tags := n.Tags()
	require.Len(t, tags, 16)
	assert.Equal(t, "housing", tags[0])
	assert.Equal(t, "other", tags[15])
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	t.Run("synonym lookup", func(t *testing.T) {
		assert.Equal(t, []string{"housing"}, n.Normalize([]string{"affordable housing"}))
		assert.Equal(t, []string{"transportation"}, n.Normalize([]string{"Bike Lanes"}))
	})

	t.Run("canonical tags pass through", func(t *testing.T) {
		assert.Equal(t, []string{"zoning", "budget"}, n.Normalize([]string{"zoning", "budget"}))
	})

	t.Run("underscore tags tolerate spaces", func(t *testing.T) {
		assert.Equal(t, []string{"public_safety"}, n.Normalize([]string{"Public Safety"}))
	})

	t.Run("unknown tags are dropped, not bucketed", func(t *testing.T) {
		assert.Empty(t, n.Normalize([]string{"alien technology"}))
		assert.Equal(t, []string{"parks"}, n.Normalize([]string{"alien technology", "parks"}))
	})

	t.Run("duplicates removed, input order preserved", func(t *testing.T) {
		got := n.Normalize([]string{"budget", "affordable housing", "finance", "housing"})
		assert.Equal(t, []string{"budget", "housing"}, got)
	})

	t.Run("punctuation and case folded", func(t *testing.T) {
		assert.Equal(t, []string{"economic_development"}, n.Normalize([]string{"Economic-Development!"}))
	})
}

func TestAggregateMeetingTopics(t *testing.T) {
	n := NewNormalizer()

	t.Run("frequency descending", func(t *testing.T) {
		got := n.AggregateMeetingTopics([][]string{
			{"housing", "budget"},
			{"budget"},
			{"budget", "parks"},
		})
		assert.Equal(t, []string{"budget", "housing", "parks"}, got)
	})

	t.Run("ties broken by taxonomy order", func(t *testing.T) {
		got := n.AggregateMeetingTopics([][]string{
			{"parks"},
			{"housing"},
		})
		// housing precedes parks in the taxonomy
		assert.Equal(t, []string{"housing", "parks"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, n.AggregateMeetingTopics(nil))
	})
}
