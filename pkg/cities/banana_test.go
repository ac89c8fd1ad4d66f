package cities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanana(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  string
	}{
		{"Palo Alto", "CA", "paloaltoCA"},
		{"Nashville", "TN", "nashvilleTN"},
		{"St. Louis", "MO", "stlouisMO"},
		{"Winston-Salem", "nc", "winstonsalemNC"},
		{"O'Fallon", "IL", "ofallonIL"},
	}
	for _, tt := range tests {
		got, err := Banana(tt.name, tt.state)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
	}
}

func TestBanana_Invalid(t *testing.T) {
	_, err := Banana("", "CA")
	assert.Error(t, err)

	_, err = Banana("Palo Alto", "California")
	assert.Error(t, err)

	_, err = Banana("!!!", "CA")
	assert.Error(t, err)
}
