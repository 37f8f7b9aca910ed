package memory

import (
	"context"
	"sync"

	"github.com/heritage-hub/heritage-engine/internal/domain/content"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// Directory implements content.Directory over a fixed item list.
type Directory struct {
	mu     sync.RWMutex
	items  map[string]content.Item
	tribes int
}

// NewDirectory indexes items. Later duplicates replace earlier ones.
func NewDirectory(items []content.Item) *Directory {
	d := &Directory{items: make(map[string]content.Item, len(items))}
	d.Replace(items)
	return d
}

// Replace swaps the directory contents.
func (d *Directory) Replace(items []content.Item) {
	idx := make(map[string]content.Item, len(items))
	for _, it := range items {
		idx[it.ID] = it
	}
	tribes := 0
	for _, it := range idx {
		if it.Kind == shared.ContentTribe {
			tribes++
		}
	}

	d.mu.Lock()
	d.items = idx
	d.tribes = tribes
	d.mu.Unlock()
}

// Lookup returns the item with the given id.
func (d *Directory) Lookup(_ context.Context, id string) (content.Item, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	it, ok := d.items[id]
	if !ok {
		return content.Item{}, shared.ErrContentNotFound
	}
	return it, nil
}

// TotalTribes returns the number of tribes.
func (d *Directory) TotalTribes(context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tribes, nil
}
