package symbol

import (
	"regexp"
	"strings"
)

var trailingClass = regexp.MustCompile(`\.([A-Z])$`)

// Variants returns the provider spellings worth trying for a raw ticker,
// most likely first and without duplicates. It never touches the network.
//
//	BRK.B  -> BRK.B, BRK-B
//	ABC-U  -> ABC-U, ABC-UN
//	XYZ.W  -> XYZ.W, XYZ-W, XYZ-WT
func Variants(raw string) []string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}

	cleaned := strings.NewReplacer(" ", "-", "/", "-").Replace(s)
	cleaned = trailingClass.ReplaceAllString(cleaned, "-$1")

	out := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(s)
	add(cleaned)

	// Units and warrants.
	if strings.HasSuffix(cleaned, "-U") {
		add(strings.TrimSuffix(cleaned, "-U") + "-UN")
	}
	if strings.HasSuffix(cleaned, "-W") {
		add(strings.TrimSuffix(cleaned, "-W") + "-WT")
	}
	if strings.HasSuffix(s, ".U") {
		add(strings.TrimSuffix(s, ".U") + "-UN")
	}
	if strings.HasSuffix(s, ".W") {
		add(strings.TrimSuffix(s, ".W") + "-WT")
	}
	return out
}

// Normalize is the storage key for a raw ticker.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
