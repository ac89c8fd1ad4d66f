package matter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/models"
)

func TestGenerateID_Deterministic(t *testing.T) {
	a := GenerateID("nashvilleTN", "BL2025-1098", "", "")
	b := GenerateID("nashvilleTN", "BL2025-1098", "", "")
	require.Equal(t, a, b, "same inputs must yield byte-identical ids")
	assert.True(t, strings.HasPrefix(a, "nashvilleTN_"))
	assert.Len(t, strings.TrimPrefix(a, "nashvilleTN_"), 16)
}

func TestGenerateID_ScopedByBanana(t *testing.T) {
	nash := GenerateID("nashvilleTN", "X", "", "")
	memphis := GenerateID("memphisTN", "X", "", "")
	assert.NotEqual(t, nash, memphis, "the same matter_file in two cities is two matters")
	assert.NotEqual(t,
		strings.TrimPrefix(nash, "nashvilleTN_"),
		strings.TrimPrefix(memphis, "memphisTN_"),
		"the hash itself is scoped, not just the prefix")
}

func TestGenerateID_TierFallback(t *testing.T) {
	t.Run("matter_file wins over matter_id and title", func(t *testing.T) {
		withAll := GenerateID("paloaltoCA", "BL2025-1", "uuid-1", "Some long ordinance title about housing")
		fileOnly := GenerateID("paloaltoCA", "BL2025-1", "", "")
		assert.Equal(t, fileOnly, withAll)
	})

	t.Run("matter_id used when file absent", func(t *testing.T) {
		withID := GenerateID("paloaltoCA", "", "uuid-1", "Some long ordinance title about housing")
		idOnly := GenerateID("paloaltoCA", "", "uuid-1", "")
		assert.Equal(t, idOnly, withID)
	})

	t.Run("matter_file is canonicalised before hashing", func(t *testing.T) {
		assert.Equal(t,
			GenerateID("paloaltoCA", "bl2025-1098", "", ""),
			GenerateID("paloaltoCA", "  BL2025-1098  ", "", ""))
	})

	t.Run("tiers never collide", func(t *testing.T) {
		file := GenerateID("paloaltoCA", "same-value-for-collision-check", "", "")
		vendor := GenerateID("paloaltoCA", "", "same-value-for-collision-check", "")
		assert.NotEqual(t, file, vendor)
	})
}

func TestGenerateID_TitleTier(t *testing.T) {
	title := "An ordinance amending the zoning code for downtown parcels"

	t.Run("reading prefixes collapse to one matter", func(t *testing.T) {
		first := GenerateID("nashvilleTN", "", "", "FIRST READING: "+title)
		second := GenerateID("nashvilleTN", "", "", "SECOND READING: "+title)
		bare := GenerateID("nashvilleTN", "", "", title)
		assert.Equal(t, bare, first)
		assert.Equal(t, bare, second)
	})

	t.Run("short titles produce no id", func(t *testing.T) {
		assert.Empty(t, GenerateID("nashvilleTN", "", "", "Budget update"))
	})

	t.Run("excluded procedural titles produce no id", func(t *testing.T) {
		for _, title := range []string{"Public Comment", "Roll Call", "Closed Session", "Open Forum", "Staff Comments"} {
			assert.Empty(t, GenerateID("nashvilleTN", "", "", title), title)
		}
	})

	t.Run("district prefixes are preserved", func(t *testing.T) {
		with := GenerateID("nashvilleTN", "", "", "District 3: "+title)
		without := GenerateID("nashvilleTN", "", "", title)
		assert.NotEqual(t, without, with, "district items must not collapse together")
	})
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FIRST READING: An Ordinance", "an ordinance"},
		{"Second Read: An Ordinance", "an ordinance"},
		{"REINTRODUCED: An   Ordinance", "an ordinance"},
		{"first reading: SECOND READING: nested", "nested"},
		{"  Plain   Title  ", "plain title"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in), tt.in)
	}
}

func TestAttachmentHash(t *testing.T) {
	a := models.Attachment{Name: "staff report", URL: "https://example.gov/a.pdf", Type: "pdf"}
	b := models.Attachment{Name: "exhibit", URL: "https://example.gov/b.pdf", Type: "pdf"}

	t.Run("order independent", func(t *testing.T) {
		assert.Equal(t,
			AttachmentHash([]models.Attachment{a, b}),
			AttachmentHash([]models.Attachment{b, a}))
	})

	t.Run("url change changes the hash", func(t *testing.T) {
		b2 := b
		b2.URL = "https://example.gov/b-v2.pdf"
		assert.NotEqual(t,
			AttachmentHash([]models.Attachment{a, b}),
			AttachmentHash([]models.Attachment{a, b2}))
	})

	t.Run("empty list hashes to empty", func(t *testing.T) {
		assert.Empty(t, AttachmentHash(nil))
	})
}
