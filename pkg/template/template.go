// Package template renders script templates containing {{name}} placeholders.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"browtool/pkg/errors"
)

// placeholderRe matches {{identifier}} with optional interior whitespace.
// Identifiers follow the usual rule: a letter or underscore, then letters,
// digits, or underscores.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ExtractParams returns the unique placeholder names in text, in
// first-seen order.
func ExtractParams(text string) []string {
	seen := make(map[string]struct{})
	var params []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		params = append(params, name)
	}
	return params
}

// Render substitutes every placeholder in text with its value from args.
// A placeholder absent from args fails with a missing-argument error naming
// that placeholder. A present-but-nil value substitutes as empty text.
// Substituted values are never re-scanned for placeholders, so values
// containing {{...}} cannot trigger further expansion.
func Render(text string, args map[string]any) (string, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, m := range matches {
		name := text[m[2]:m[3]]
		value, ok := args[name]
		if !ok {
			return "", errors.MissingArgument(name)
		}
		sb.WriteString(text[last:m[0]])
		sb.WriteString(formatValue(value))
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
