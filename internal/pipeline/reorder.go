package pipeline

// Reorderer releases values pushed in any index order strictly in index
// order, starting at 0. Values that arrive early wait in a side buffer until
// every lower index has been released.
type Reorderer[T any] struct {
	next    int
	pending map[int]T
}

func NewReorderer[T any]() *Reorderer[T] {
	return &Reorderer[T]{pending: make(map[int]T)}
}

// Push records v at index i and returns the values that became contiguous,
// in index order. Indexes already released or already pending are ignored.
func (r *Reorderer[T]) Push(i int, v T) []T {
	if i < r.next {
		return nil
	}
	if _, dup := r.pending[i]; dup {
		return nil
	}
	r.pending[i] = v

	var out []T
	for {
		v, ok := r.pending[r.next]
		if !ok {
			return out
		}
		delete(r.pending, r.next)
		out = append(out, v)
		r.next++
	}
}

// Next returns the lowest index not yet released.
func (r *Reorderer[T]) Next() int {
	return r.next
}

// Pending returns the number of buffered values.
func (r *Reorderer[T]) Pending() int {
	return len(r.pending)
}
