// Package hashmap implements an open-addressing hash table keyed by strings.
// Deleted entries leave tombstones behind so that probe sequences stay intact;
// tombstones are dropped the next time the table is rehashed.
package hashmap

import "github.com/cespare/xxhash/v2"

const (
	initSize = 16
	// Rehash once usage (live keys plus tombstones) reaches this percentage.
	highWatermark = 70
	// After rehashing, live keys occupy less than this percentage.
	lowWatermark = 50
)

type state uint8

const (
	empty state = iota
	live
	tombstone
)

type entry[V any] struct {
	key   string
	val   V
	state state
}

// Map is a string-keyed hash map. The zero value is ready to use.
type Map[V any] struct {
	buckets []entry[V]
	used    int // live entries plus tombstones
	live    int
}

// New returns an empty map.
func New[V any]() *Map[V] { return &Map[V]{} }

func hash(key string) uint64 { return xxhash.Sum64String(key) }

// Len reports the number of live keys.
func (m *Map[V]) Len() int { return m.live }

// Cap reports the current bucket count.
func (m *Map[V]) Cap() int { return len(m.buckets) }

func (m *Map[V]) find(key string) *entry[V] {
	if len(m.buckets) == 0 {
		return nil
	}
	h := hash(key)
	n := uint64(len(m.buckets))
	for i := uint64(0); i < n; i++ {
		e := &m.buckets[(h+i)%n]
		switch e.state {
		case empty:
			return nil
		case live:
			if e.key == key {
				return e
			}
		}
	}
	return nil
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	if e := m.find(key); e != nil {
		return e.val, true
	}
	var zero V
	return zero, false
}

// Lookup is Get without the presence flag.
func (m *Map[V]) Lookup(key string) V {
	v, _ := m.Get(key)
	return v
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool { return m.find(key) != nil }

// Put stores val under key, replacing any previous value.
func (m *Map[V]) Put(key string, val V) {
	if len(m.buckets) == 0 {
		m.buckets = make([]entry[V], initSize)
	} else if m.used*100/len(m.buckets) >= highWatermark {
		m.rehash()
	}

	h := hash(key)
	n := uint64(len(m.buckets))
	var reuse *entry[V]
	for i := uint64(0); i < n; i++ {
		e := &m.buckets[(h+i)%n]
		switch e.state {
		case live:
			if e.key == key {
				e.val = val
				return
			}
		case tombstone:
			if reuse == nil {
				reuse = e
			}
		case empty:
			if reuse == nil {
				reuse = e
				m.used++
			}
			*reuse = entry[V]{key: key, val: val, state: live}
			m.live++
			return
		}
	}
	if reuse == nil {
		panic("hashmap: table full")
	}
	*reuse = entry[V]{key: key, val: val, state: live}
	m.live++
}

// Delete removes key. Deleting a missing key is a no-op.
func (m *Map[V]) Delete(key string) {
	e := m.find(key)
	if e == nil {
		return
	}
	var zero V
	e.key, e.val, e.state = "", zero, tombstone
	m.live--
}

// Range calls fn for each live entry until fn returns false. Order is unspecified.
func (m *Map[V]) Range(fn func(key string, val V) bool) {
	for i := range m.buckets {
		if e := &m.buckets[i]; e.state == live {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}

func (m *Map[V]) rehash() {
	c := len(m.buckets)
	for m.live*100/c >= lowWatermark {
		c *= 2
	}
	old := m.buckets
	m.buckets = make([]entry[V], c)
	m.used, m.live = 0, 0
	for i := range old {
		if old[i].state == live {
			m.Put(old[i].key, old[i].val)
		}
	}
}
