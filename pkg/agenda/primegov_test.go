package agenda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primeGovAgendaHTML = `<html><body>
<div class="agenda-item">
  <span class="item-number">CF 25-0142</span>
  <div class="item-title">Authorize agreement with County of Santa Clara for homeless services funding</div>
  <div class="sponsors">Sponsors: Rivera, Chen</div>
  <a href="/Public/CompiledDocument/991.pdf">Staff Report</a>
</div>
<div class="agenda-item">
  <div class="item-title">Adopt resolution 25-201 approving the annual operating budget</div>
  <a href="https://cdn.primegov.com/docs/budget.pdf">Budget Document</a>
  <a href="/unrelated/page">See details</a>
</div>
</body></html>`

func TestParsePrimeGov(t *testing.T) {
	items, err := ParsePrimeGov([]byte(primeGovAgendaHTML), "https://city.primegov.com/Portal/Meeting?meetingTemplateId=42")
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, 0, first.Sequence)
	assert.Contains(t, first.Title, "homeless services")
	assert.Equal(t, "CF 25-0142", first.MatterFile, "file number cell wins over title scan")
	require.Len(t, first.Sponsors, 2)
	assert.Equal(t, "Rivera", first.Sponsors[0].Name)
	require.Len(t, first.Attachments, 1)
	assert.Equal(t, "pdf", first.Attachments[0].Type)
	assert.Equal(t, "https://city.primegov.com/Public/CompiledDocument/991.pdf", first.Attachments[0].URL)

	second := items[1]
	assert.Equal(t, 1, second.Sequence)
	assert.Equal(t, "25-201", second.MatterFile)
	require.Len(t, second.Attachments, 1, "navigation links are not attachments")
	assert.Equal(t, "https://cdn.primegov.com/docs/budget.pdf", second.Attachments[0].URL)
}
