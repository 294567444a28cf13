package complecs

import "strconv"

// Handle is a stable reference to a slot in a Storage. It combines the slot
// index with the generation the slot had when the value was inserted, so a
// handle to a removed value can never reach whatever occupies the slot next.
//
// Handles are plain values: they may be copied, compared and shared freely.
// Holding a handle does not own the slot.
type Handle struct {
	// Index is the slot position inside the storage.
	Index uint32
	// Generation is a counter bumped every time the slot is freed. It starts
	// at 1, so the zero Handle is never valid.
	Generation uint32
}

// IsZero reports whether h is the zero Handle, which no storage ever issues.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.Index), 10) + "v" + strconv.FormatUint(uint64(h.Generation), 10)
}
