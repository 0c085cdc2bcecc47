package state

import "github.com/m3rciful/orderbot/core/order"

// Store maps conversation keys to their current session.
//
// A Store is safe for concurrent use across distinct keys. It does not
// serialize writers of the same key; the dispatch bridge guarantees a single
// writer per key at a time.
type Store interface {
	Get(key order.Key) (order.Session, bool)
	// Put replaces any session held for key.
	Put(key order.Key, s order.Session)
	Remove(key order.Key)
	Len() int
}
