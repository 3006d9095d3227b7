package resolver

import (
	"sync"

	"github.com/nao1215/pdfaudit/internal/model"
)

// Occurrence is one place in the document where a URL appears.
type Occurrence struct {
	Page int
	Seq  int
	URL  string
}

// Index maps normalized URLs to every occurrence of them in the document.
// Keys are remembered in first-seen order, so a document read front to back
// yields keys in reading order.
type Index struct {
	mu          sync.Mutex
	order       []string
	occurrences map[string][]Occurrence
	total       int
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		occurrences: make(map[string][]Occurrence),
	}
}

// Add normalizes raw and records the occurrence under the resulting key.
// first is true when this call introduced the key.
func (ix *Index) Add(page, seq int, raw string) (key string, first bool, err error) {
	key, err = Normalize(raw)
	if err != nil {
		return "", false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing, ok := ix.occurrences[key]
	if !ok {
		ix.order = append(ix.order, key)
	}
	ix.occurrences[key] = append(existing, Occurrence{Page: page, Seq: seq, URL: raw})
	ix.total++

	return key, !ok, nil
}

// Keys returns the distinct keys in first-seen order.
func (ix *Index) Keys() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	keys := make([]string, len(ix.order))
	copy(keys, ix.order)
	return keys
}

// Occurrences returns the recorded occurrences of key in insertion order.
func (ix *Index) Occurrences(key string) []Occurrence {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	occ := ix.occurrences[key]
	out := make([]Occurrence, len(occ))
	copy(out, occ)
	return out
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.order)
}

// OccurrenceCount returns the number of recorded occurrences across all keys.
func (ix *Index) OccurrenceCount() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.total
}

// Results is the terminal-result store shared by concurrent link checks.
// Every write goes through InsertIfAbsent, so each key is written at most
// once and a stored status never changes.
type Results struct {
	mu       sync.RWMutex
	statuses map[string]model.LinkStatus
}

// NewResults creates an empty Results store.
func NewResults() *Results {
	return &Results{
		statuses: make(map[string]model.LinkStatus),
	}
}

// InsertIfAbsent stores status under key unless the key already has a result.
// Non-terminal statuses are rejected. It reports whether the status was stored.
func (r *Results) InsertIfAbsent(key string, status model.LinkStatus) bool {
	if !status.Terminal() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[key]; ok {
		return false
	}
	r.statuses[key] = status
	return true
}

// Get returns the stored status for key.
func (r *Results) Get(key string) (model.LinkStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.statuses[key]
	return status, ok
}

// Len returns the number of stored results.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.statuses)
}
