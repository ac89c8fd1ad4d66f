package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/models"
)

func TestScoreQuality(t *testing.T) {
	t.Run("short text is poor", func(t *testing.T) {
		assert.Equal(t, models.QualityPoor, ScoreQuality(strings.Repeat("word ", 10)[:50]))
	})

	t.Run("plain english is good", func(t *testing.T) {
		text := strings.Repeat("the council considered the ordinance and voted to approve it ", 10)
		require.GreaterOrEqual(t, len(text), 500)
		assert.Equal(t, models.QualityGood, ScoreQuality(text))
	})

	t.Run("low letter ratio is poor", func(t *testing.T) {
		text := strings.Repeat("123 456 789 000 111 ", 20)
		assert.Equal(t, models.QualityPoor, ScoreQuality(text))
	})

	t.Run("few words is poor", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 15) // long, letters, but one word
		assert.Equal(t, models.QualityPoor, ScoreQuality(text))
	})
}

func TestHTMLText(t *testing.T) {
	html := []byte(`<html><head><style>.x{}</style><script>var a;</script></head>
		<body>
		<nav>Home | About</nav>
		<main>
			<h1>City Council Agenda</h1>
			<p>Call to order at 6:30 PM.</p>
			<ul><li>Item one: zoning variance</li><li>Item two: budget hearing</li></ul>
		</main>
		<footer>Copyright</footer>
		</body></html>`)

	text, err := htmlText(html)
	require.NoError(t, err)
	assert.Contains(t, text, "City Council Agenda")
	assert.Contains(t, text, "zoning variance")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "var a;")
}

func TestNormalizeText(t *testing.T) {
	in := "line one   \n\n\n\nline two\t\n"
	assert.Equal(t, "line one\n\nline two", normalizeText(in))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF([]byte("%PDF-1.7 rest"), "application/octet-stream"))
	assert.True(t, isPDF([]byte("x"), "application/pdf"))
	assert.False(t, isPDF([]byte("<html>"), "text/html"))
}
