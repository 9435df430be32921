// Package queue keeps the ordered list of tracks waiting to be loaded into
// a deck.
package queue

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/satindergrewal/blancdj/internal/audio"
)

var (
	ErrNotFound = errors.New("queue item not found")
	ErrIndex    = errors.New("queue index out of range")
)

// AnyDeck marks an item that either deck may take.
const AnyDeck = ""

// Item is a queued track and the deck it is meant for.
type Item struct {
	audio.TrackInfo
	Deck string `json:"deck"`
}

// Queue is safe for concurrent use.
type Queue struct {
	mu    sync.RWMutex
	items []Item
}

func New() *Queue { return &Queue{} }

// Add appends a track for deck and returns the new item.
func (q *Queue) Add(t audio.TrackInfo, deck string) Item {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	it := Item{TrackInfo: t, Deck: deck}
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()
	return it
}

// Remove deletes the item with id.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.items = slices.Delete(q.items, i, i+1)
	return nil
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.items, func(it Item) bool { return it.ID == id })
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Move takes the item at from and reinserts it at to.
func (q *Queue) Move(from, to int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d to %d of %d", ErrIndex, from, to, n)
	}
	it := q.items[from]
	q.items = slices.Delete(q.items, from, from+1)
	q.items = slices.Insert(q.items, to, it)
	return nil
}

// Items returns a snapshot in play order.
func (q *Queue) Items() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.items)
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Next removes and returns the first item meant for deck. Items queued for
// AnyDeck match every deck.
func (q *Queue) Next(deck string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.IndexFunc(q.items, func(it Item) bool {
		return it.Deck == deck || it.Deck == AnyDeck
	})
	if i < 0 {
		return Item{}, false
	}
	it := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	return it, true
}
