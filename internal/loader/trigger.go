package loader

import (
	"context"
	"os"
	"os/signal"
	"time"

	"html-loader/pkg/models"
)

// Once yields a single activation of tab and closes.
func Once(tab models.TabID) <-chan models.Activation {
	ch := make(chan models.Activation, 1)
	ch <- models.Activation{Tab: tab, At: time.Now()}
	close(ch)
	return ch
}

// OnSignal yields one activation of tab per received signal until ctx is
// done, then closes.
func OnSignal(ctx context.Context, tab models.TabID, sigs ...os.Signal) <-chan models.Activation {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)
	return fromTicks[os.Signal](ctx, tab, sigChan, func() { signal.Stop(sigChan) })
}

func fromTicks[T any](ctx context.Context, tab models.TabID, ticks <-chan T, stop func()) <-chan models.Activation {
	out := make(chan models.Activation)
	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				select {
				case out <- models.Activation{Tab: tab, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
