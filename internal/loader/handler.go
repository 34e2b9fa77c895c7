// Package loader reacts to activations by capturing a tab's markup and
// handing it back to the tab as a download.
package loader

import (
	"context"
	"log"
	"os"
	"sync"

	"html-loader/internal"
	"html-loader/internal/page"
	"html-loader/pkg/models"
)

// Recorder is told about every finished activation: the markup as far as it
// was captured, and the error that stopped it, if any.
type Recorder interface {
	Record(markup models.CapturedMarkup, err error)
}

type Option func(*Handler)

func WithLogger(l *log.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// Handler runs the capture-then-deliver sequence. Register one per process.
type Handler struct {
	exec     page.Executor
	recorder Recorder
	logger   *log.Logger
	tally    *internal.Tally
}

func NewHandler(exec page.Executor, opts ...Option) *Handler {
	h := &Handler{
		exec:   exec,
		logger: log.New(os.Stderr, "", log.LstdFlags),
		tally:  internal.NewTally(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one activation. Delivery only starts once capture has
// returned, and always receives exactly the captured markup. Failures are
// logged and returned, never retried.
func (h *Handler) Handle(ctx context.Context, act models.Activation) error {
	tab := act.Tab
	if tab == "" {
		active, err := h.exec.ActiveTab(ctx)
		if err != nil {
			h.logger.Printf("No tab to capture: %v", err)
			return err
		}
		tab = active
	}
	n := h.tally.Next(tab)

	markup, err := h.exec.Capture(ctx, tab)
	markup.Tab = tab
	if err != nil {
		h.logger.Printf("[tab %s] activation #%d: %v", tab, n, err)
		h.record(markup, err)
		return err
	}
	h.logger.Printf("[tab %s] activation #%d: Got html code!", tab, n)

	file := models.NewOutputFile(markup)
	receipt, err := h.exec.Deliver(ctx, tab, file)
	if err != nil {
		h.logger.Printf("[tab %s] activation #%d: %v", tab, n, err)
		h.record(markup, err)
		return err
	}
	h.logger.Printf("[tab %s] activation #%d: Nice!", tab, n)
	h.logger.Printf("[tab %s] activation #%d: %+v", tab, n, receipt)

	h.record(markup, nil)
	return nil
}

func (h *Handler) record(markup models.CapturedMarkup, err error) {
	if h.recorder != nil {
		h.recorder.Record(markup, err)
	}
}

// Run handles every activation from activations in its own goroutine, so
// repeated activations run independently. It returns once activations is
// closed or ctx is done, and the in-flight activations have finished.
func (h *Handler) Run(ctx context.Context, activations <-chan models.Activation) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case act, ok := <-activations:
			if !ok {
				return
			}
			wg.Add(1)
			go func(act models.Activation) {
				defer wg.Done()
				// Handle already logged the failure; nothing else to do.
				_ = h.Handle(ctx, act)
			}(act)
		}
	}
}
