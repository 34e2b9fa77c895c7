// Package page is the capability boundary between the loader and the
// browser: everything that runs inside a tab goes through an Executor.
package page

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"html-loader/pkg/models"
)

// ErrInjection is returned when a routine could not be executed in a tab:
// the tab is privileged, gone, or the browser refused the call.
var ErrInjection = errors.New("injection failed")

// Executor runs the capture and delivery routines in a browser tab.
type Executor interface {
	// ActiveTab returns the tab an activation without a tab refers to.
	ActiveTab(ctx context.Context) (models.TabID, error)
	// Capture returns the tab's serialized document markup.
	Capture(ctx context.Context, tab models.TabID) (models.CapturedMarkup, error)
	// Deliver hands file to the browser's save-file flow from inside the tab.
	Deliver(ctx context.Context, tab models.TabID, file models.OutputFile) (models.DeliveryReceipt, error)
}

var privilegedSchemes = map[string]bool{
	"chrome":           true,
	"chrome-extension": true,
	"chrome-search":    true,
	"chrome-untrusted": true,
	"devtools":         true,
	"edge":             true,
	"view-source":      true,
}

// IsPrivileged reports whether scripts may not be injected into a page at
// pageURL, mirroring the pages a browser extension is kept out of.
func IsPrivileged(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}
	scheme := strings.ToLower(u.Scheme)
	if privilegedSchemes[scheme] {
		return true
	}
	if scheme == "about" {
		return u.Opaque != "blank"
	}
	host := strings.ToLower(u.Hostname())
	if host == "chromewebstore.google.com" {
		return true
	}
	return host == "chrome.google.com" && strings.HasPrefix(u.Path, "/webstore")
}
