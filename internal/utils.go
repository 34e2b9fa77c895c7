package internal

import (
	"sync"

	"html-loader/pkg/models"
)

// Tally counts activations per tab. It never deduplicates; it only numbers.
type Tally struct {
	mu sync.Mutex
	v  map[models.TabID]int
}

func NewTally() *Tally {
	return &Tally{v: make(map[models.TabID]int)}
}

// Next records one more activation of tab and returns its ordinal.
func (t *Tally) Next(tab models.TabID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.v[tab]++
	return t.v[tab]
}

func (t *Tally) Count(tab models.TabID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.v[tab]
}
