// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"iter"

	"github.com/gviegas/deferred/internal/bitvec"
)

// dataEntry is what a dataMap stores.
type dataEntry[T any] struct {
	data T
	id   int
}

// dataMap stores data of type D with identifiers
// of type I.
// Identifiers are small integers that remain valid
// until removed; data is kept packed.
type dataMap[I ~int, D any] struct {
	// Index into data, or -1 if free.
	ids   []int
	idMap bitvec.V[uint32]
	data  []dataEntry[D]
}

// insert inserts data into m.
// It returns an I value that identifies data in m.
func (m *dataMap[I, D]) insert(data D) I {
	if m.idMap.Rem() == 0 {
		var cnt int
		if n := m.idMap.Len(); n > 0 {
			cnt = 1 + (n-31)/32
		} else {
			cnt = 1
		}
		m.idMap.Grow(cnt)
		for len(m.ids) < m.idMap.Len() {
			m.ids = append(m.ids, -1)
		}
	}
	idx, ok := m.idMap.Search()
	if !ok {
		// Should never happen.
		panic("unexpected failure from bitvec.V.Search")
	}
	m.idMap.Set(idx)
	m.ids[idx] = len(m.data)
	m.data = append(m.data, dataEntry[D]{data, idx})
	return I(idx)
}

// remove removes the data identified by id.
// It returns the removed data.
// id must belong to m.
func (m *dataMap[I, D]) remove(id I) D {
	d := m.ids[id]
	data := m.data[d]
	last := len(m.data) - 1
	if d < last {
		swap := m.data[last].id
		m.ids[swap] = d
		m.data[d] = m.data[last]
	}
	m.ids[id] = -1
	m.idMap.Unset(int(id))
	m.data[last] = dataEntry[D]{}
	m.data = m.data[:last]
	return data.data
}

// contains returns whether id belongs to m.
func (m *dataMap[I, D]) contains(id I) bool { return m.idMap.IsSet(int(id)) }

// get returns a pointer to the data identified by id.
// id must belong to m.
func (m *dataMap[I, D]) get(id I) *D { return &m.data[m.ids[id]].data }

// all returns an iterator over the identifiers in m
// and their data, in identifier order.
func (m *dataMap[I, D]) all() iter.Seq2[I, *D] {
	return func(yield func(I, *D) bool) {
		for idx := range m.idMap.All() {
			if !yield(I(idx), &m.data[m.ids[idx]].data) {
				return
			}
		}
	}
}

// len returns the number of elements in m.
func (m *dataMap[_, _]) len() int { return len(m.data) }
