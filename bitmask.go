package complecs

// bitmask256 is a set of ComponentIDs. Schema compilation keeps one per
// process (the components it touches) and one per entity kind (the
// components it owns).
type bitmask256 [4]uint64

// word returns the word index and bit of id.
func word(id ComponentID) (int, uint64) {
	return int(id >> 6), uint64(1) << (id & 63)
}

func (m *bitmask256) set(id ComponentID) {
	i, b := word(id)
	m[i] |= b
}

// containsBit reports whether id is in m.
func (m bitmask256) containsBit(id ComponentID) bool {
	i, b := word(id)
	return m[i]&b != 0
}

// contains reports whether every member of sub is in m: an entity kind may
// join a process only if it owns every component the process touches.
func (m bitmask256) contains(sub bitmask256) bool {
	for i := range m {
		if m[i]&sub[i] != sub[i] {
			return false
		}
	}
	return true
}

// intersects reports whether m and other share a member. A process whose
// mutable and immutable sets intersect is rejected.
func (m bitmask256) intersects(other bitmask256) bool {
	for i := range m {
		if m[i]&other[i] != 0 {
			return true
		}
	}
	return false
}
