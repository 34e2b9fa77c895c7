package page

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"html-loader/pkg/models"
)

// These tests drive a real headless Chrome and only run when asked to.
func requireChrome(t *testing.T) {
	t.Helper()
	if os.Getenv("LOADER_CHROME_TESTS") != "1" {
		t.Skip("set LOADER_CHROME_TESTS=1 to run browser tests")
	}
}

func newTestExecutor(t *testing.T, startURL string) (*CDPExecutor, string) {
	t.Helper()
	requireChrome(t)

	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	exec, err := NewCDPExecutor(ctx, BrowserConfig{
		Headless:        true,
		StartURL:        startURL,
		DownloadDir:     dir,
		WaitForDownload: true,
	})
	if err != nil {
		t.Fatalf("Could not start browser: %v", err)
	}
	t.Cleanup(exec.Close)
	return exec, dir
}

// captureAndDeliver runs both routines on the active tab and returns the
// markup with the bytes that landed on disk.
func captureAndDeliver(t *testing.T, exec *CDPExecutor, dir string) (models.CapturedMarkup, models.DeliveryReceipt, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tab, err := exec.ActiveTab(ctx)
	if err != nil {
		t.Fatalf("ActiveTab: %v", err)
	}
	markup, err := exec.Capture(ctx, tab)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	receipt, err := exec.Deliver(ctx, tab, models.NewOutputFile(markup))
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	// Deliver waits for the download, so the file is complete now.
	data, err := os.ReadFile(filepath.Join(dir, models.OutputFileName))
	if err != nil {
		t.Fatalf("Download missing after Deliver returned: %v", err)
	}
	return markup, receipt, data
}

func TestCDPExecutor_CaptureAndDeliver(t *testing.T) {
	exec, dir := newTestExecutor(t, "data:text/html,<html><body>Hi</body></html>")

	markup, receipt, data := captureAndDeliver(t, exec, dir)

	// The browser normalizes the document and adds the missing head.
	expected := "<html><head></head><body>Hi</body></html>"
	if markup.HTML != expected {
		t.Fatalf("Capture mismatch.\nExpected: %q\nGot:      %q", expected, markup.HTML)
	}
	if receipt.Filename != models.OutputFileName || receipt.Size != len(expected) || receipt.Type != models.OutputMIMEType {
		t.Errorf("Unexpected receipt: %+v", receipt)
	}
	if string(data) != expected {
		t.Errorf("Downloaded file mismatch.\nExpected: %q\nGot:      %q", expected, data)
	}
}

func TestCDPExecutor_RoundTripKeepsAwkwardMarkup(t *testing.T) {
	doc := "<html><head><title>héllo</title></head><body>\n" +
		`<p class="q" data-x='single'>say "hi" \ back\\slash</p>` + "\n" +
		"<pre>line one\nline two\ttabbed</pre>\n" +
		"<p>&lt;/script&gt; inside text</p>\n" +
		"<p>héllo 日本語 🎉</p>\n" +
		"</body></html>"
	exec, dir := newTestExecutor(t, "data:text/html;charset=utf-8,"+url.PathEscape(doc))

	markup, receipt, data := captureAndDeliver(t, exec, dir)

	for _, want := range []string{`"hi"`, `\ back\\slash`, "line one\nline two\ttabbed", "&lt;/script&gt;", "héllo 日本語 🎉"} {
		if !strings.Contains(markup.HTML, want) {
			t.Errorf("Captured markup lost %q:\n%s", want, markup.HTML)
		}
	}
	if string(data) != markup.HTML {
		t.Errorf("Downloaded file differs from capture.\nCaptured:   %q\nDownloaded: %q", markup.HTML, data)
	}
	// The receipt reports the Blob size, which counts UTF-8 bytes.
	if receipt.Size != len(markup.HTML) {
		t.Errorf("Receipt size %d, want %d bytes", receipt.Size, len(markup.HTML))
	}
}

func TestCDPExecutor_PrivilegedTab(t *testing.T) {
	exec, _ := newTestExecutor(t, "chrome://version/")
	ctx := context.Background()

	tab, err := exec.ActiveTab(ctx)
	if err != nil {
		t.Fatalf("ActiveTab: %v", err)
	}
	if _, err := exec.Capture(ctx, tab); !errors.Is(err, ErrInjection) {
		t.Fatalf("Expected ErrInjection, got %v", err)
	}
}

func hasTarget(t *testing.T, ctx context.Context, id target.ID) bool {
	t.Helper()
	infos, err := chromedp.Targets(ctx)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	for _, info := range infos {
		if info.TargetID == id {
			return true
		}
	}
	return false
}

func TestCDPExecutor_DetachKeepsForeignTabOpen(t *testing.T) {
	exec, _ := newTestExecutor(t, "about:blank")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// A tab the executor did not open itself, like a user's tab.
	c := chromedp.FromContext(exec.browserCtx)
	id, err := target.CreateTarget("data:text/html,<p>mine</p>").Do(cdp.WithExecutor(ctx, c.Browser))
	if err != nil {
		t.Fatalf("CreateTarget: %v", err)
	}

	if _, err := exec.Capture(ctx, models.TabID(id)); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	exec.detachAll()

	// Target closing is asynchronous; give it a moment to happen if it would.
	time.Sleep(500 * time.Millisecond)
	if !hasTarget(t, exec.browserCtx, id) {
		t.Fatalf("Tab %s was closed when the executor detached", id)
	}
}

// Attaching to a browser that outlives the test needs its DevTools URL,
// e.g. chrome --remote-debugging-port=9222 and
// LOADER_DEVTOOLS_URL=http://127.0.0.1:9222.
func TestCDPExecutor_CloseLeavesAttachedTabOpen(t *testing.T) {
	requireChrome(t)
	devtools := os.Getenv("LOADER_DEVTOOLS_URL")
	if devtools == "" {
		t.Skip("set LOADER_DEVTOOLS_URL to run attach tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	exec, err := NewCDPExecutor(ctx, BrowserConfig{DevToolsURL: devtools})
	if err != nil {
		t.Fatalf("Could not attach: %v", err)
	}
	tab, err := exec.ActiveTab(ctx)
	if err != nil {
		exec.Close()
		t.Fatalf("ActiveTab: %v", err)
	}
	if _, err := exec.Capture(ctx, tab); err != nil && !errors.Is(err, ErrInjection) {
		exec.Close()
		t.Fatalf("Capture: %v", err)
	}
	exec.Close()

	again, err := NewCDPExecutor(ctx, BrowserConfig{DevToolsURL: devtools})
	if err != nil {
		t.Fatalf("Could not re-attach: %v", err)
	}
	defer again.Close()

	time.Sleep(500 * time.Millisecond)
	if !hasTarget(t, again.browserCtx, target.ID(tab)) {
		t.Fatalf("Tab %s was closed by Close", tab)
	}
}
