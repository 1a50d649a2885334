// Package script applies textual transformations to Playwright Python
// scripts: launch-policy coercion and best-effort HTML capture injection.
// Both operate on a narrow set of known call shapes rather than parsing
// the script.
package script

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headlessTrueRe  = regexp.MustCompile(`headless\s*=\s*True`)
	headlessFalseRe = regexp.MustCompile(`headless\s*=\s*False`)
	slowMoRe        = regexp.MustCompile(`slow_mo\s*=\s*\d+`)
	launchCallRe    = regexp.MustCompile(`launch\(([^)]*)\)`)
)

// CoerceLaunchOptions forces headless and slow_mo onto every launch(...)
// call in the script. Existing assignments anywhere in the text are
// rewritten; launch calls missing either kwarg get it appended, other
// arguments kept verbatim. Applying the same policy twice is a no-op.
//
// The launch call is bounded by the first closing parenthesis, so
// arguments containing nested parentheses are not handled.
func CoerceLaunchOptions(text string, headless bool, slowMoMillis int) string {
	headlessVal := pythonBool(headless)
	slowMoVal := fmt.Sprintf("slow_mo=%d", slowMoMillis)

	text = headlessTrueRe.ReplaceAllString(text, "headless="+headlessVal)
	text = headlessFalseRe.ReplaceAllString(text, "headless="+headlessVal)
	text = slowMoRe.ReplaceAllString(text, slowMoVal)

	return launchCallRe.ReplaceAllStringFunc(text, func(call string) string {
		inner := strings.TrimSpace(call[len("launch(") : len(call)-1])

		parts := make([]string, 0, 3)
		if inner != "" {
			parts = append(parts, inner)
		}
		if !strings.Contains(inner, "headless") {
			parts = append(parts, "headless="+headlessVal)
		}
		if !strings.Contains(inner, "slow_mo") {
			parts = append(parts, slowMoVal)
		}
		return "launch(" + strings.Join(parts, ", ") + ")"
	})
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
