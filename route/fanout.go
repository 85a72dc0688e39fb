package route

// Fanouts holds at most one live fanout per key. Entries are removed by their
// owner as soon as they become empty.
type Fanouts[K comparable, F any] struct {
	entries map[K]F
}

// NewFanouts creates an empty table.
func NewFanouts[K comparable, F any]() *Fanouts[K, F] {
	return &Fanouts[K, F]{entries: make(map[K]F)}
}

// GetOrInsert returns the fanout for key, calling factory exactly once when
// there is none. The boolean reports whether the fanout was created.
func (f *Fanouts[K, F]) GetOrInsert(key K, factory func(K) F) (F, bool) {
	if fanout, ok := f.entries[key]; ok {
		return fanout, false
	}
	fanout := factory(key)
	f.entries[key] = fanout
	return fanout, true
}

// Get returns the fanout for key.
func (f *Fanouts[K, F]) Get(key K) (F, bool) {
	fanout, ok := f.entries[key]
	return fanout, ok
}

// Remove evicts the fanout for key. It reports whether one was present.
func (f *Fanouts[K, F]) Remove(key K) bool {
	if _, ok := f.entries[key]; !ok {
		return false
	}
	delete(f.entries, key)
	return true
}

// Len returns the number of live fanouts.
func (f *Fanouts[K, F]) Len() int {
	return len(f.entries)
}
