// Package outqueue implements the output-side buffering between a
// Writer's composed bytes and a single socket's write-readiness: a FIFO
// of byte-like items that can themselves be lazy producers of further
// items, flattened on demand as the connection drains them.
package outqueue

import "container/list"

// Producer yields a sequence of items lazily. Each call to Next returns
// the next item (either a []byte/string leaf, or another Producer to
// flatten) and whether the sequence has more left. A Writer's compose
// functions return Producers so a large response (e.g. a file body) is
// never materialized in memory all at once.
type Producer interface {
	Next() (item any, ok bool)
}

// Queue is a double-ended FIFO of pending output items. It is not safe
// for concurrent use: like the rest of the core, it is only ever touched
// from the single connection-owning goroutine.
type Queue struct {
	items *list.List
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{items: list.New()}
}

// Insert appends an item to the back of the queue. Falsy/empty items
// ([]byte(nil), "", a nil Producer) are silently dropped, matching the
// original insert_data contract: inserting "nothing" is a no-op, not an
// empty write.
func (q *Queue) Insert(item any) {
	switch v := item.(type) {
	case nil:
		return
	case []byte:
		if len(v) == 0 {
			return
		}
	case string:
		if v == "" {
			return
		}
	}
	q.items.PushBack(item)
}

// ReinsertPartial pushes data back onto the front of the queue. Used when
// a write to the socket only accepted part of a chunk: the unsent tail
// goes back to the head so it is the very next thing sent.
func (q *Queue) ReinsertPartial(data []byte) {
	if len(data) == 0 {
		return
	}
	q.items.PushFront(data)
}

// Empty reports whether the queue (and every nested Producer it holds)
// is known to be drained. A Producer that hasn't been flattened yet
// still counts as non-empty even if it will ultimately yield nothing.
func (q *Queue) Empty() bool {
	return q.items.Len() == 0
}

// Len returns the number of top-level items currently queued (nested
// Producers count as one until flattened).
func (q *Queue) Len() int {
	return q.items.Len()
}

// NextChunk pops and returns the next ready-to-send byte slice, flattening
// nested Producers depth-first as it goes. ok is false when the queue is
// empty. A Producer that is itself exhausted is discarded and the search
// continues with the next item, exactly as the original get_next_chunk
// loop discards a StopIteration and tries again.
func (q *Queue) NextChunk() (chunk []byte, ok bool) {
	for {
		front := q.items.Front()
		if front == nil {
			return nil, false
		}
		switch v := front.Value.(type) {
		case []byte:
			q.items.Remove(front)
			return v, true
		case string:
			q.items.Remove(front)
			return []byte(v), true
		case Producer:
			item, has := v.Next()
			if !has {
				q.items.Remove(front)
				continue
			}
			// Put the (possibly still-producing) Producer back behind
			// the item it just yielded, so later calls resume it in
			// order rather than losing its remaining output.
			q.items.Remove(front)
			q.items.PushFront(v)
			q.items.PushFront(item)
		default:
			// Unknown leaf type: treat it as opaque and drop it rather
			// than loop forever.
			q.items.Remove(front)
		}
	}
}
