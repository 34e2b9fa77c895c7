package page

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"html-loader/pkg/models"
)

// BrowserConfig says how to reach the browser.
type BrowserConfig struct {
	// DevToolsURL attaches to a running browser. Empty launches one.
	DevToolsURL string
	Headless    bool
	// StartURL is opened in the launched browser's first tab.
	StartURL string
	// DownloadDir, when set, is where the browser saves delivered files.
	DownloadDir string
	// WaitForDownload makes Deliver return only once the browser has
	// finished writing the file. Needed when the process owns the browser
	// and exits right after delivering.
	WaitForDownload bool
}

// CDPExecutor runs the page routines over the Chrome DevTools Protocol.
type CDPExecutor struct {
	config BrowserConfig

	browserCtx context.Context
	cancel     context.CancelFunc

	mu   sync.Mutex
	tabs map[models.TabID]*tabSession
}

// tabSession is an attached DevTools session on one tab.
type tabSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	// owned is true for the tab of a browser we launched.
	owned bool
}

// NewCDPExecutor connects to (or launches) the browser. Close releases it.
func NewCDPExecutor(ctx context.Context, cfg BrowserConfig) (*CDPExecutor, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.DevToolsURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.DevToolsURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	e := &CDPExecutor{
		config:     cfg,
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		tabs: make(map[models.TabID]*tabSession),
	}

	if cfg.DevToolsURL == "" {
		// A launched browser gets its first tab from the browser context itself.
		startURL := cfg.StartURL
		if startURL == "" {
			startURL = "about:blank"
		}
		if err := chromedp.Run(browserCtx, chromedp.Navigate(startURL)); err != nil {
			e.Close()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		id := models.TabID(chromedp.FromContext(browserCtx).Target.TargetID)
		e.tabs[id] = &tabSession{ctx: browserCtx, cancel: func() {}, owned: true}
		log.Printf("Launched browser, tab %s at %s", id, startURL)
		return e, nil
	}

	if _, err := chromedp.Targets(browserCtx); err != nil {
		e.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.DevToolsURL, err)
	}
	log.Printf("Connected to browser at %s", cfg.DevToolsURL)
	return e, nil
}

// Close detaches from every tab and from the browser. Tabs of a browser we
// attached to stay open; a browser we launched is shut down.
func (e *CDPExecutor) Close() {
	e.detachAll()
	e.cancel()
}

func (e *CDPExecutor) detachAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, tab := range e.tabs {
		if !tab.owned {
			release(tab)
		}
		delete(e.tabs, id)
	}
}

func (e *CDPExecutor) ActiveTab(ctx context.Context) (models.TabID, error) {
	infos, err := chromedp.Targets(e.browserCtx)
	if err != nil {
		return "", fmt.Errorf("listing tabs: %w: %v", ErrInjection, err)
	}
	for _, info := range infos {
		if info.Type == "page" {
			return models.TabID(info.TargetID), nil
		}
	}
	return "", fmt.Errorf("no open tab: %w", ErrInjection)
}

// session returns the attached session for id, attaching on first use.
// Sessions live until Close.
func (e *CDPExecutor) session(id models.TabID) (*chromedp.Target, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tab, ok := e.tabs[id]; ok {
		return chromedp.FromContext(tab.ctx).Target, nil
	}

	ctx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithTargetID(target.ID(id)))
	tab := &tabSession{ctx: ctx, cancel: cancel}
	// The first Run on a WithTargetID context only attaches.
	if err := chromedp.Run(ctx); err != nil {
		release(tab)
		return nil, err
	}
	e.tabs[id] = tab
	return chromedp.FromContext(ctx).Target, nil
}

// release detaches from a tab we did not create without closing it.
// Cancelling a chromedp context that holds a Target closes that target, so
// the Target is detached by hand and cleared first.
func release(tab *tabSession) {
	c := chromedp.FromContext(tab.ctx)
	if c.Target != nil && c.Browser != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := target.DetachFromTarget().WithSessionID(c.Target.SessionID).Do(cdp.WithExecutor(ctx, c.Browser))
		cancel()
		if err != nil {
			log.Printf("Detaching from tab %s: %v", c.Target.TargetID, err)
		}
		c.Target = nil
	}
	tab.cancel()
}

func (e *CDPExecutor) Capture(ctx context.Context, id models.TabID) (models.CapturedMarkup, error) {
	markup := models.CapturedMarkup{Tab: id}
	tab, err := e.session(id)
	if err != nil {
		return markup, fmt.Errorf("attaching to tab %s: %w: %v", id, ErrInjection, err)
	}

	if err := runInTab(ctx, tab, chromedp.Location(&markup.URL)); err != nil {
		return markup, fmt.Errorf("reading location of tab %s: %w: %v", id, ErrInjection, err)
	}
	if IsPrivileged(markup.URL) {
		return markup, fmt.Errorf("cannot access contents of %s: %w", markup.URL, ErrInjection)
	}

	if err := runInTab(ctx, tab, callInPage(CaptureScript, &markup.HTML)); err != nil {
		return markup, fmt.Errorf("capturing tab %s: %w: %v", id, ErrInjection, err)
	}
	markup.CapturedAt = time.Now()
	return markup, nil
}

func (e *CDPExecutor) Deliver(ctx context.Context, id models.TabID, file models.OutputFile) (models.DeliveryReceipt, error) {
	var receipt models.DeliveryReceipt
	tab, err := e.session(id)
	if err != nil {
		return receipt, fmt.Errorf("attaching to tab %s: %w: %v", id, ErrInjection, err)
	}

	var actions []chromedp.Action
	if e.config.DownloadDir != "" || e.config.WaitForDownload {
		behavior := browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorDefault)
		if e.config.DownloadDir != "" {
			behavior = browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
				WithDownloadPath(e.config.DownloadDir)
		}
		actions = append(actions, behavior.WithEventsEnabled(e.config.WaitForDownload))
	}

	var download *downloadWatch
	if e.config.WaitForDownload {
		download = e.watchDownload(id, file.Name)
		defer download.stop()
	}

	actions = append(actions, callInPage(DeliverScript, &receipt, string(file.Data)))
	if err := runInTab(ctx, tab, actions...); err != nil {
		return receipt, fmt.Errorf("delivering to tab %s: %w: %v", id, ErrInjection, err)
	}

	if download != nil {
		select {
		case <-ctx.Done():
			return receipt, fmt.Errorf("waiting for download in tab %s: %w: %v", id, ErrInjection, ctx.Err())
		case err := <-download.done:
			if err != nil {
				return receipt, fmt.Errorf("download in tab %s: %w: %v", id, ErrInjection, err)
			}
		}
	}
	return receipt, nil
}

type downloadWatch struct {
	done <-chan error
	stop context.CancelFunc
}

// watchDownload reports when the browser finishes (or cancels) the first
// download named filename that begins after the call.
func (e *CDPExecutor) watchDownload(id models.TabID, filename string) *downloadWatch {
	e.mu.Lock()
	tabCtx := e.tabs[id].ctx
	e.mu.Unlock()

	lctx, cancel := context.WithCancel(tabCtx)
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
		cancel()
	}

	// Target listeners run one at a time, so guid needs no lock.
	var guid string
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *browser.EventDownloadWillBegin:
			if guid == "" && ev.SuggestedFilename == filename {
				guid = ev.GUID
			}
		case *browser.EventDownloadProgress:
			if guid == "" || ev.GUID != guid {
				return
			}
			switch ev.State {
			case browser.DownloadProgressStateCompleted:
				finish(nil)
			case browser.DownloadProgressStateCanceled:
				finish(fmt.Errorf("download of %s was canceled", filename))
			}
		}
	})
	return &downloadWatch{done: done, stop: cancel}
}

// runInTab runs actions in the tab's session under the caller's ctx. Once
// ctx ends no further command is sent; a command already sent is not recalled.
func runInTab(ctx context.Context, tab *chromedp.Target, actions ...chromedp.Action) error {
	return chromedp.Tasks(actions).Do(cdp.WithExecutor(ctx, tab))
}

// callInPage calls fn with args in the page's main world, as a user-initiated
// call so the browser lets an anchor click start a download.
func callInPage(fn string, res interface{}, args ...interface{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		global, exp, err := runtime.Evaluate("globalThis").Do(ctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return exp
		}
		defer func() { _ = runtime.ReleaseObject(global.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(global.ObjectID).WithUserGesture(true).WithReturnByValue(true)
		}, args...).Do(ctx)
	})
}
