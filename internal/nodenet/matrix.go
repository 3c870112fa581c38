package nodenet

import "sort"

type matrixEntry struct {
	index  int
	weight float64
}

// sparseMatrix is the weight matrix between elements. Rows are target
// (slot) elements, columns are source (gate) elements. Both directions are
// indexed and each adjacency list is kept sorted by element index so that
// sums are evaluated in a stable order. A weight of zero is never stored:
// setting it removes the entry.
type sparseMatrix struct {
	rows map[int][]matrixEntry
	cols map[int][]matrixEntry
	nnz  int
}

func newSparseMatrix() *sparseMatrix {
	return &sparseMatrix{
		rows: make(map[int][]matrixEntry),
		cols: make(map[int][]matrixEntry),
	}
}

func (m *sparseMatrix) get(target, source int) (float64, bool) {
	row := m.rows[target]
	i := searchEntries(row, source)
	if i < len(row) && row[i].index == source {
		return row[i].weight, true
	}
	return 0, false
}

// set stores weight at (target, source) and reports whether an entry
// existed before.
func (m *sparseMatrix) set(target, source int, weight float64) bool {
	if weight == 0 {
		return m.remove(target, source)
	}
	existed := upsertEntry(m.rows, target, source, weight)
	upsertEntry(m.cols, source, target, weight)
	if !existed {
		m.nnz++
	}
	return existed
}

func (m *sparseMatrix) remove(target, source int) bool {
	if !removeEntry(m.rows, target, source) {
		return false
	}
	removeEntry(m.cols, source, target)
	m.nnz--
	return true
}

// incoming lists the source elements feeding target.
func (m *sparseMatrix) incoming(target int) []matrixEntry {
	return m.rows[target]
}

// outgoing lists the target elements fed by source.
func (m *sparseMatrix) outgoing(source int) []matrixEntry {
	return m.cols[source]
}

// clearRow removes every entry targeting the element and returns the
// removed source indices.
func (m *sparseMatrix) clearRow(target int) []int {
	row := m.rows[target]
	if len(row) == 0 {
		return nil
	}
	sources := make([]int, 0, len(row))
	for _, e := range row {
		sources = append(sources, e.index)
		removeEntry(m.cols, e.index, target)
		m.nnz--
	}
	delete(m.rows, target)
	return sources
}

// clearCol removes every entry sourced at the element and returns the
// removed target indices.
func (m *sparseMatrix) clearCol(source int) []int {
	col := m.cols[source]
	if len(col) == 0 {
		return nil
	}
	targets := make([]int, 0, len(col))
	for _, e := range col {
		targets = append(targets, e.index)
		removeEntry(m.rows, e.index, source)
		m.nnz--
	}
	delete(m.cols, source)
	return targets
}

// targetRows returns the populated row indices in ascending order.
func (m *sparseMatrix) targetRows() []int {
	out := make([]int, 0, len(m.rows))
	for t := range m.rows {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

func searchEntries(entries []matrixEntry, index int) int {
	return sort.Search(len(entries), func(i int) bool { return entries[i].index >= index })
}

func upsertEntry(index map[int][]matrixEntry, key, other int, weight float64) bool {
	list := index[key]
	i := searchEntries(list, other)
	if i < len(list) && list[i].index == other {
		list[i].weight = weight
		return true
	}
	list = append(list, matrixEntry{})
	copy(list[i+1:], list[i:])
	list[i] = matrixEntry{index: other, weight: weight}
	index[key] = list
	return false
}

func removeEntry(index map[int][]matrixEntry, key, other int) bool {
	list := index[key]
	i := searchEntries(list, other)
	if i >= len(list) || list[i].index != other {
		return false
	}
	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		delete(index, key)
	} else {
		index[key] = list
	}
	return true
}
