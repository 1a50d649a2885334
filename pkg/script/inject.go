package script

import (
	"fmt"
	"strings"
)

// teardownMarkers are the call sites that end a Playwright session. The
// capture block must land before the first of these so the page handle is
// still usable.
var teardownMarkers = []string{"context.close()", "browser.close()", "page.close()"}

// CaptureWaits bounds the injected block's settling behavior.
type CaptureWaits struct {
	LoadTimeoutMillis int
	IdleTimeoutMillis int
	SettleMillis      int
}

// DefaultCaptureWaits returns the stock wait policy: 15s for load, 10s for
// network idle, 3s of extra settling.
func DefaultCaptureWaits() CaptureWaits {
	return CaptureWaits{
		LoadTimeoutMillis: 15000,
		IdleTimeoutMillis: 10000,
		SettleMillis:      3000,
	}
}

// InjectHTMLCapture inserts a best-effort block that writes the final page
// HTML to htmlPath. The block resolves a page handle from a local `page`
// binding, falling back to the first page of a `context` binding, and
// swallows every error so the primary script's outcome is never affected.
//
// The block is inserted immediately before the first teardown marker line,
// copying that line's indentation. Scripts without a marker get the block
// appended at EOF, where it may run outside the intended scope.
func InjectHTMLCapture(text, htmlPath string) string {
	return InjectHTMLCaptureWaits(text, htmlPath, DefaultCaptureWaits())
}

// InjectHTMLCaptureWaits is InjectHTMLCapture with an explicit wait policy.
func InjectHTMLCaptureWaits(text, htmlPath string, waits CaptureWaits) string {
	lines := strings.Split(text, "\n")

	insertAt := -1
	indent := ""
	for i, line := range lines {
		if containsTeardownMarker(line) {
			insertAt = i
			indent = line[:len(line)-len(strings.TrimLeft(line, " "))]
			break
		}
	}

	block := captureBlock(htmlPath, isAsyncScript(text), waits)

	if insertAt == -1 {
		return strings.TrimRight(text, " \t\r\n") + "\n\n" + block + "\n"
	}

	blockLines := strings.Split(block, "\n")
	indented := make([]string, 0, len(blockLines))
	for _, l := range blockLines {
		if strings.TrimSpace(l) == "" {
			indented = append(indented, l)
			continue
		}
		indented = append(indented, indent+l)
	}

	out := make([]string, 0, len(lines)+len(indented))
	out = append(out, lines[:insertAt]...)
	out = append(out, indented...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}

// isAsyncScript classifies the script's execution style to pick between the
// suspending and blocking capture variants.
func isAsyncScript(text string) bool {
	return strings.Contains(text, "async_playwright") ||
		strings.Contains(text, "await ") ||
		strings.Contains(text, "async def ")
}

func containsTeardownMarker(line string) bool {
	for _, m := range teardownMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func captureBlock(htmlPath string, async bool, waits CaptureWaits) string {
	await := ""
	if async {
		await = "await "
	}

	var sb strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	w(`__BROWTOOL_HTML_PATH = r"""%s"""`, htmlPath)
	w(`try:`)
	w(`    _bt_page = locals().get("page")`)
	w(`    _bt_ctx = locals().get("context")`)
	w(`    if _bt_page is None and _bt_ctx is not None:`)
	w(`        _bt_pages = getattr(_bt_ctx, "pages", None)`)
	w(`        if _bt_pages:`)
	w(`            _bt_page = _bt_pages[0]`)
	w(`    if _bt_page is not None:`)
	w(`        # Wait for any pending navigation to complete`)
	w(`        try:`)
	w(`            %s_bt_page.wait_for_load_state("load", timeout=%d)`, await, waits.LoadTimeoutMillis)
	w(`        except Exception:`)
	w(`            pass`)
	w(`        # Wait for network to settle (dynamic content)`)
	w(`        try:`)
	w(`            %s_bt_page.wait_for_load_state("networkidle", timeout=%d)`, await, waits.IdleTimeoutMillis)
	w(`        except Exception:`)
	w(`            pass`)
	w(`        # Extra buffer for JS rendering`)
	w(`        %s_bt_page.wait_for_timeout(%d)`, await, waits.SettleMillis)
	w(`        _bt_html = %s_bt_page.content()`, await)
	w(`        with open(__BROWTOOL_HTML_PATH, "w", encoding="utf-8") as _bt_f:`)
	w(`            _bt_f.write(_bt_html)`)
	sb.WriteString(`except Exception:` + "\n")
	sb.WriteString(`    pass`)
	return sb.String()
}
