package agenda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const granicusAgendaHTML = `<html><body><table>
<tr><td colspan="2"><b>CONSENT CALENDAR</b></td></tr>
<tr>
  <td><a href="https://city.granicus.com/MetaViewer.php?meta_id=12345">24-0101</a></td>
  <td>Approval of contract 24-0101 with Acme Paving for street resurfacing</td>
</tr>
<tr>
  <td><a href="/MetaViewer.php?meta_id=67890&view=1">BL2025-1098</a></td>
  <td>FIRST READING: An ordinance amending Title 17 zoning for BL2025-1098</td>
</tr>
<tr><td>No document here</td><td>Announcements</td></tr>
</table></body></html>`

func TestParseGranicus(t *testing.T) {
	items, err := ParseGranicus([]byte(granicusAgendaHTML), "https://city.granicus.com/AgendaViewer.php?view_id=1&event_id=9")
	require.NoError(t, err)
	require.Len(t, items, 2, "only rows with MetaViewer links are items")

	assert.Equal(t, 0, items[0].Sequence)
	assert.Contains(t, items[0].Title, "Acme Paving")
	assert.Equal(t, "24-0101", items[0].MatterFile)
	require.NotEmpty(t, items[0].Attachments)
	assert.Equal(t, "12345", items[0].Attachments[0].MetaID)

	assert.Equal(t, 1, items[1].Sequence)
	assert.Equal(t, "BL2025-1098", items[1].MatterFile)
	assert.Contains(t, items[1].Attachments[0].URL, "meta_id=67890")
}

func TestParseGranicus_Empty(t *testing.T) {
	items, err := ParseGranicus([]byte(`<html><body><p>nothing</p></body></html>`), "https://x.granicus.com/a")
	require.NoError(t, err)
	assert.Empty(t, items)
}
