package storage

import (
	"html-loader/pkg/models"
	"log"
	"sync/atomic"
	"time"
)

// Archive records captures in the background. Record never waits for the
// database: when the buffer is full the record is logged and dropped.
// Close flushes what is buffered and waits for it.
type Archive struct {
	records chan models.CaptureRecord
	done    <-chan struct{}
	dropped atomic.Int64
}

// NewArchive starts the batched save worker feeding save.
func NewArchive(save func([]models.CaptureRecord) error, batchSize int, flush time.Duration) *Archive {
	if batchSize < 1 {
		batchSize = 1
	}
	records := make(chan models.CaptureRecord, batchSize*2)
	return &Archive{
		records: records,
		done:    startSaveWorker(records, batchSize, flush, save),
	}
}

// StartCaptureArchive wires an Archive to the captures table.
func (storage *Storage) StartCaptureArchive(batchSize int, flush time.Duration) *Archive {
	sink := &CaptureSink{Storage: storage}
	return NewArchive(sink.Save, batchSize, flush)
}

// Record archives one finished activation. err is the failure that stopped
// it, nil for a delivered capture.
func (a *Archive) Record(markup models.CapturedMarkup, err error) {
	r := NewCaptureRecord(markup, err)
	select {
	case a.records <- r:
	default:
		a.dropped.Add(1)
		log.Printf("Archive backlog full, dropping capture of %s", r.URL)
	}
}

// Dropped is the number of records Record had to discard.
func (a *Archive) Dropped() int64 {
	return a.dropped.Load()
}

// Close must be called once, after the last Record.
func (a *Archive) Close() {
	close(a.records)
	<-a.done
}

// NewCaptureRecord summarizes a capture for the captures table.
func NewCaptureRecord(markup models.CapturedMarkup, err error) models.CaptureRecord {
	r := models.CaptureRecord{
		Tab:        markup.Tab,
		URL:        markup.URL,
		Title:      TitleOf(markup.HTML),
		Size:       len(markup.HTML),
		Status:     models.StatusDelivered,
		CapturedAt: markup.CapturedAt,
	}
	if r.CapturedAt.IsZero() {
		r.CapturedAt = time.Now()
	}
	if err != nil {
		r.Status = models.StatusFailed
		r.Error = err.Error()
	}
	return r
}
