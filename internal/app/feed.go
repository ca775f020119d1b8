package app

import (
	"sync"

	"github.com/hylla/labbook/internal/domain"
)

// ChangeFeed fans change events out to in-process subscribers.
type ChangeFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[domain.Table]map[int]func(domain.ChangeEvent)
}

// NewChangeFeed constructs an empty change feed.
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subs: map[domain.Table]map[int]func(domain.ChangeEvent){}}
}

// Subscribe registers fn for one table, or every table with domain.TableAll.
// The returned cancel func is safe to call more than once.
func (f *ChangeFeed) Subscribe(table domain.Table, fn func(domain.ChangeEvent)) func() {
	if fn == nil {
		return func() {}
	}
	if table == "" {
		table = domain.TableAll
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.subs[table] == nil {
		f.subs[table] = map[int]func(domain.ChangeEvent){}
	}
	f.subs[table][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[table], id)
			if len(f.subs[table]) == 0 {
				delete(f.subs, table)
			}
		})
	}
}

// Publish calls every subscriber of the event's table and of TableAll.
// Callbacks run synchronously on the caller's goroutine, outside the feed lock.
func (f *ChangeFeed) Publish(event domain.ChangeEvent) {
	f.mu.RLock()
	targets := make([]func(domain.ChangeEvent), 0, len(f.subs[event.Table])+len(f.subs[domain.TableAll]))
	for _, fn := range f.subs[event.Table] {
		targets = append(targets, fn)
	}
	if event.Table != domain.TableAll {
		for _, fn := range f.subs[domain.TableAll] {
			targets = append(targets, fn)
		}
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
}

// Subscribers reports the number of registered callbacks.
func (f *ChangeFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, subs := range f.subs {
		n += len(subs)
	}
	return n
}
