package types

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: a recognised direction hint parses the same regardless of case and padding
func TestParseDirectionCaseInsensitive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	hints := []string{"buy", "sell", "long", "short", "b", "s", "bot", "sld"}

	properties.Property("case and whitespace do not change the parsed direction", prop.ForAll(
		func(idx int, upper bool, pad int) bool {
			hint := hints[idx]
			want, _ := ParseDirection(hint)

			variant := hint
			if upper {
				variant = strings.ToUpper(variant)
			}
			variant = strings.Repeat(" ", pad) + variant + strings.Repeat(" ", pad)

			got, ok := ParseDirection(variant)
			return ok && got == want
		},
		gen.IntRange(0, len(hints)-1),
		gen.Bool(),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
