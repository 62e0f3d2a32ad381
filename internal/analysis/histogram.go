package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry is one histogram bucket.
type Entry[K comparable] struct {
	Key   K
	Count int64
}

// Histogram counts keys and remembers the order in which each key was first
// seen. Ties are always resolved by that order.
type Histogram[K comparable] struct {
	index   map[K]int
	entries []Entry[K]
}

// Add counts one occurrence of key.
func (h *Histogram[K]) Add(key K) {
	if h.index == nil {
		h.index = make(map[K]int)
	}
	if i, ok := h.index[key]; ok {
		h.entries[i].Count++
		return
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, Entry[K]{Key: key, Count: 1})
}

// Count returns the occurrences of key.
func (h *Histogram[K]) Count(key K) int64 {
	if h == nil {
		return 0
	}
	if i, ok := h.index[key]; ok {
		return h.entries[i].Count
	}
	return 0
}

// Len returns the number of distinct keys.
func (h *Histogram[K]) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Total returns the sum of all counts.
func (h *Histogram[K]) Total() int64 {
	if h == nil {
		return 0
	}
	var n int64
	for _, e := range h.entries {
		n += e.Count
	}
	return n
}

// Entries returns the buckets in first-insertion order.
func (h *Histogram[K]) Entries() []Entry[K] {
	if h == nil {
		return nil
	}
	return append([]Entry[K](nil), h.entries...)
}

// MostCommon returns the bucket with the highest count. Among equal counts
// the key inserted first wins.
func (h *Histogram[K]) MostCommon() (Entry[K], bool) {
	if h == nil || len(h.entries) == 0 {
		return Entry[K]{}, false
	}
	best := h.entries[0]
	for _, e := range h.entries[1:] {
		if e.Count > best.Count {
			best = e
		}
	}
	return best, true
}

// MarshalJSON writes an object whose keys keep first-insertion order.
func (h *Histogram[K]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if h != nil {
		for i, e := range h.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(fmt.Sprint(e.Key))
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			fmt.Fprintf(&buf, "%d", e.Count)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
