package containers

import "fmt"

// Rotation is a fixed set of entries handed out in strict round-robin order.
// Entries are addressed by small integer handles that are bounds checked.
type Rotation[T any] struct {
	entries []T
	cursor  int
	started bool
}

// NewRotation builds a rotation of n entries, each produced by build. When
// build fails the entries created so far are returned with the error so the
// caller can release them.
func NewRotation[T any](n int, build func(index int) (T, error)) (*Rotation[T], error) {
	r := &Rotation[T]{entries: make([]T, 0, n)}
	for i := 0; i < n; i++ {
		e, err := build(i)
		if err != nil {
			return r, err
		}
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Len is the number of entries.
func (r *Rotation[T]) Len() int {
	return len(r.entries)
}

// Next advances the cursor and returns the new current entry with its index.
// The first call returns entry 0.
func (r *Rotation[T]) Next() (int, T) {
	if r.started {
		r.cursor = (r.cursor + 1) % len(r.entries)
	}
	r.started = true
	return r.cursor, r.entries[r.cursor]
}

// PeekNext returns the entry the next call to Next will hand out.
func (r *Rotation[T]) PeekNext() (int, T) {
	i := 0
	if r.started {
		i = (r.cursor + 1) % len(r.entries)
	}
	return i, r.entries[i]
}

// Current returns the entry handed out by the last Next.
func (r *Rotation[T]) Current() (int, T) {
	return r.cursor, r.entries[r.cursor]
}

// At returns entry i. Out of range handles panic with the offending index.
func (r *Rotation[T]) At(i int) T {
	if i < 0 || i >= len(r.entries) {
		panic(fmt.Sprintf("rotation handle %d out of range [0,%d)", i, len(r.entries)))
	}
	return r.entries[i]
}

// Each calls fn on every entry in handle order.
func (r *Rotation[T]) Each(fn func(index int, entry T)) {
	for i, e := range r.entries {
		fn(i, e)
	}
}
