package catalog

import "strings"

// Named is anything that can be resolved by a declared name.
type Named interface {
	Key() string
}

// Lookup resolves names case-insensitively against a fixed, ordered set of entries.
type Lookup[T Named] struct {
	items []T
	index map[string]int
}

// NewLookup builds a lookup preserving declaration order. Later duplicates
// (by case-insensitive name) are ignored.
func NewLookup[T Named](items []T) Lookup[T] {
	l := Lookup[T]{index: make(map[string]int, len(items))}
	for _, item := range items {
		key := strings.ToLower(item.Key())
		if _, exists := l.index[key]; exists {
			continue
		}
		l.index[key] = len(l.items)
		l.items = append(l.items, item)
	}
	return l
}

// Find returns the entry declared under name, ignoring case and surrounding space.
func (l Lookup[T]) Find(name string) (T, bool) {
	var zero T
	i, ok := l.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return zero, false
	}
	return l.items[i], true
}

// All returns the entries in declaration order.
func (l Lookup[T]) All() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Names returns the declared names in order.
func (l Lookup[T]) Names() []string {
	names := make([]string, 0, len(l.items))
	for _, item := range l.items {
		names = append(names, item.Key())
	}
	return names
}

// Len returns the number of entries.
func (l Lookup[T]) Len() int {
	return len(l.items)
}
