// Package cities derives city identities and imports the city seed file.
package cities

import (
	"strings"
	"unicode"

	"github.com/engagic/engagic/pkg/models"
)

// Banana derives the vendor-agnostic city key: lowercase alphanumeric city
// name concatenated with the uppercase state code. "Palo Alto", "CA" →
// "paloaltoCA".
func Banana(name, state string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", models.NewValidationError("name", "no alphanumeric characters")
	}

	st := strings.ToUpper(strings.TrimSpace(state))
	if len(st) != 2 {
		return "", models.NewValidationError("state", "must be a two-letter code")
	}
	return b.String() + st, nil
}
