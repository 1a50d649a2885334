package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syncScript = `from playwright.sync_api import sync_playwright

with sync_playwright() as p:
    browser = p.chromium.launch()
    context = browser.new_context()
    page = context.new_page()
    page.goto("https://example.com")
    context.close()
    browser.close()
`

const asyncScript = `import asyncio
from playwright.async_api import async_playwright

async def run():
    async with async_playwright() as p:
        browser = await p.chromium.launch()
        page = await browser.new_page()
        await page.goto("https://example.com")
        await browser.close()

asyncio.run(run())
`

func TestInjectHTMLCaptureBeforeFirstTeardown(t *testing.T) {
	out := InjectHTMLCapture(syncScript, "/tmp/run/artifact.html")

	blockAt := strings.Index(out, "__BROWTOOL_HTML_PATH")
	contextClose := strings.Index(out, "context.close()")
	browserClose := strings.Index(out, "browser.close()")

	require.GreaterOrEqual(t, blockAt, 0, "capture block missing")
	assert.Less(t, blockAt, contextClose, "block must precede context.close()")
	assert.Less(t, blockAt, browserClose)
	assert.Contains(t, out, `r"""/tmp/run/artifact.html"""`)
}

func TestInjectHTMLCaptureCopiesMarkerIndentation(t *testing.T) {
	out := InjectHTMLCapture(syncScript, "artifact.html")

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "__BROWTOOL_HTML_PATH") {
			assert.True(t, strings.HasPrefix(line, "    __BROWTOOL_HTML_PATH"),
				"block should carry the teardown line's indentation: %q", line)
			return
		}
	}
	t.Fatal("capture block not found")
}

func TestInjectHTMLCapturePrimaryScriptUnchanged(t *testing.T) {
	out := InjectHTMLCapture(syncScript, "artifact.html")

	// Every original line survives, in order.
	rest := out
	for _, line := range strings.Split(strings.TrimRight(syncScript, "\n"), "\n") {
		idx := strings.Index(rest, line)
		require.GreaterOrEqual(t, idx, 0, "original line lost: %q", line)
		rest = rest[idx+len(line):]
	}
}

func TestInjectHTMLCaptureSyncVariant(t *testing.T) {
	out := InjectHTMLCapture(syncScript, "artifact.html")

	assert.Contains(t, out, `_bt_page.wait_for_load_state("load", timeout=15000)`)
	assert.Contains(t, out, `_bt_page.wait_for_load_state("networkidle", timeout=10000)`)
	assert.Contains(t, out, "_bt_page.wait_for_timeout(3000)")
	assert.NotContains(t, out, "await _bt_page")
}

func TestInjectHTMLCaptureAsyncVariant(t *testing.T) {
	out := InjectHTMLCapture(asyncScript, "artifact.html")

	assert.Contains(t, out, `await _bt_page.wait_for_load_state("load", timeout=15000)`)
	assert.Contains(t, out, "await _bt_page.content()")
}

func TestInjectHTMLCaptureNoMarkerAppendsAtEnd(t *testing.T) {
	script := "from playwright.sync_api import sync_playwright\npage.goto('x')"
	out := InjectHTMLCapture(script, "artifact.html")

	assert.True(t, strings.HasPrefix(out, script))
	assert.Contains(t, out, "__BROWTOOL_HTML_PATH")
}

func TestInjectHTMLCaptureSwallowsAllErrors(t *testing.T) {
	out := InjectHTMLCapture(syncScript, "artifact.html")

	// The whole block sper the contract is wrapped in try/except pass.
	assert.Contains(t, out, "except Exception:")
	assert.Contains(t, out, "pass")
}

func TestInjectHTMLCaptureCustomWaits(t *testing.T) {
	waits := CaptureWaits{LoadTimeoutMillis: 100, IdleTimeoutMillis: 200, SettleMillis: 300}
	out := InjectHTMLCaptureWaits(syncScript, "artifact.html", waits)

	assert.Contains(t, out, "timeout=100")
	assert.Contains(t, out, "timeout=200")
	assert.Contains(t, out, "wait_for_timeout(300)")
}
