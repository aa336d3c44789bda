package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"brk.b", []string{"BRK.B", "BRK-B"}},
		{"ABC-U", []string{"ABC-U", "ABC-UN"}},
		{"XYZ.W", []string{"XYZ.W", "XYZ-W", "XYZ-WT"}},
		{"ABC.U", []string{"ABC.U", "ABC-U", "ABC-UN"}},
		{"BF/B", []string{"BF/B", "BF-B"}},
		{" aapl ", []string{"AAPL"}},
		{"RDS A", []string{"RDS A", "RDS-A"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Variants(tt.raw))
		})
	}
}

func TestVariantsSecondIsHyphenated(t *testing.T) {
	v := Variants("BRK.B")
	if assert.Len(t, v, 2) {
		assert.Equal(t, "BRK-B", v[1])
	}
	assert.Contains(t, Variants("ABC-U"), "ABC-UN")
}

func TestVariantsNoDuplicates(t *testing.T) {
	for _, raw := range []string{"ABC.U", "XYZ.W", "BRK.B", "MSFT"} {
		seen := map[string]bool{}
		for _, v := range Variants(raw) {
			assert.False(t, seen[v], "duplicate %s for %s", v, raw)
			seen[v] = true
		}
	}
}
