package storage

import (
	"log"
	"time"
)

// startSaveWorker buffers items from dataChan and hands them to save in
// batches: when the buffer is full, on every tick, and once more when
// dataChan is closed. The returned channel closes after the final flush.
func startSaveWorker[T any](
	dataChan <-chan T,
	batchSize int,
	batchTimeout time.Duration,
	save func([]T) error) <-chan struct{} {

	if batchSize < 1 {
		batchSize = 1
	}
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		buffer := make([]T, 0, batchSize)
		ticker := time.NewTicker(batchTimeout)
		defer ticker.Stop()

		flush := func() {
			if len(buffer) == 0 {
				return
			}
			if err := save(buffer); err != nil {
				log.Printf("Batch save failed: %v", err)
			} else {
				log.Printf("Saved batch of size %d", len(buffer))
			}
			buffer = buffer[:0]
		}

		for {
			select {
			case data, ok := <-dataChan:
				if !ok {
					flush()
					return
				}
				buffer = append(buffer, data)
				if len(buffer) >= batchSize {
					flush()
				}

			case <-ticker.C:
				flush()
			}
		}
	}()
	return done
}
