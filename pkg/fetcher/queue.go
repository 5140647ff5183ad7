package fetcher

import (
	"sort"
	"sync"
)

// queue is a deduplicating, drainable set of keys. Keys are added in any
// order but a drain always yields them sorted, so the "strictly
// increasing" guarantee on emitted keys holds regardless of
// enqueue order.
type queue struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newQueue() *queue {
	return &queue{set: make(map[string]struct{})}
}

// add enqueues k, ignoring the empty string (an unset config field).
func (q *queue) add(k string) {
	if k == "" {
		return
	}
	q.mu.Lock()
	q.set[k] = struct{}{}
	q.mu.Unlock()
}

func (q *queue) addAll(ks []string) {
	for _, k := range ks {
		q.add(k)
	}
}

// drain empties the queue and returns its keys sorted ascending.
func (q *queue) drain() []string {
	q.mu.Lock()
	keys := make([]string, 0, len(q.set))
	for k := range q.set {
		keys = append(keys, k)
	}
	q.set = make(map[string]struct{})
	q.mu.Unlock()

	sort.Strings(keys)
	return keys
}
