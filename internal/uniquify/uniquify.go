// Package uniquify rewrites segment identifiers in page markup before a
// merge. The engine numbers regions and lines per page (r1, l1, ...), so two
// pages of the same container collide once their markup is combined; a page
// order prefix keeps every identifier unique in the merged document.
package uniquify

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// idPattern matches id attributes whose value is a region (r) or line (l)
// identifier, in either quote style. Values already carrying a page prefix
// start with "p" and fall outside the character classes, which is what makes
// a second pass a no-op.
var idPattern = regexp.MustCompile(`id=(["'])([rl]\d+)(["'])`)

// Apply prefixes every region and line identifier in markup with the page
// order. Running it again over its own output changes nothing.
func Apply(markup string, pageOrder int) string {
	prefix := fmt.Sprintf("p%d_", pageOrder)
	return idPattern.ReplaceAllStringFunc(markup, func(match string) string {
		parts := idPattern.FindStringSubmatch(match)
		return "id=" + parts[1] + prefix + parts[2] + parts[3]
	})
}

// File rewrites a markup file in place.
func File(path string, pageOrder int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read markup: %w", err)
	}
	rewritten := Apply(string(data), pageOrder)
	if rewritten == string(data) {
		return nil
	}
	if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
		return fmt.Errorf("write markup: %w", err)
	}
	return nil
}

// Prefixed reports whether the markup already carries page prefixes, which
// means it went through Apply at some point.
func Prefixed(markup string) bool {
	return strings.Contains(markup, `id="p`) || strings.Contains(markup, `id='p`)
}
