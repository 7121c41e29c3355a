package plan

// Map is a string-keyed map that preserves insertion order when iterated or
// listed. The core planning algorithm depends on insertion order being
// observable (it determines tie-break fetch ordering at plan emission), which
// a bare Go map cannot provide.
type Map[V any] struct {
	keys   []string
	values map[string]V
}

// NewMap creates an empty ordered map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{values: make(map[string]V)}
}

// Get returns the value stored under key and whether it was present.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. The key is appended to the insertion order the
// first time it is seen; subsequent calls update the value in place without
// moving its position.
func (m *Map[V]) Set(key string, value V) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Keys returns the keys in insertion order.
func (m *Map[V]) Keys() []string {
	return m.keys
}

// Values returns the values in insertion order.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return len(m.keys)
}
