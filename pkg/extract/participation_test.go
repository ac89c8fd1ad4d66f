package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParticipation(t *testing.T) {
	text := `CITY COUNCIL REGULAR MEETING
The public may attend in person at Council Chambers, 250 Hamilton Ave,
or join remotely via Zoom: https://cityofpaloalto.zoom.us/j/83212345678
Webinar ID: 832 1234 5678
By phone: (650) 555-0100
Written comments: city.clerk@cityofpaloalto.org
1. Call to Order`

	p := ParseParticipation(text)
	require.NotNil(t, p)
	assert.Equal(t, "city.clerk@cityofpaloalto.org", p.Email)
	assert.Equal(t, "(650) 555-0100", p.Phone)
	assert.Equal(t, "https://cityofpaloalto.zoom.us/j/83212345678", p.VirtualURL)
	assert.Equal(t, "832 1234 5678", p.MeetingID)
	assert.True(t, p.IsHybrid)
}

func TestParseParticipation_Nothing(t *testing.T) {
	assert.Nil(t, ParseParticipation("1. Approval of minutes\n2. Adjournment"))
}

func TestParseParticipation_RemoteOnly(t *testing.T) {
	p := ParseParticipation("Join at https://example.webex.com/meet/council")
	require.NotNil(t, p)
	assert.Equal(t, "https://example.webex.com/meet/council", p.VirtualURL)
	assert.False(t, p.IsHybrid)
}
