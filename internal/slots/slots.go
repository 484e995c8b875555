// Package slots implements the bounded image slot collections behind the
// primary and reference upload grids.
package slots

// Empty marks a slot with no image.
const Empty = ""

const (
	// PrimaryCapacity is the size of the subject photo module.
	PrimaryCapacity = 1
	// ReferenceCapacity bounds the style reference module.
	ReferenceCapacity = 9
)

// Collection is an ordered sequence of slots. A slot holds an encoded image
// or Empty.
type Collection []string

// New returns a collection with a single empty slot.
func New() Collection {
	return Collection{Empty}
}

// Clone returns an independent copy.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// Filled returns the non-empty images in slot order.
func (c Collection) Filled() []string {
	out := make([]string, 0, len(c))
	for _, img := range c {
		if img != Empty {
			out = append(out, img)
		}
	}
	return out
}

// HasImage reports whether any slot is filled.
func (c Collection) HasImage() bool {
	for _, img := range c {
		if img != Empty {
			return true
		}
	}
	return false
}

// AssignBatch places images into empty slots at or after start. Each image
// goes into the next empty slot past the previous placement; when none is
// left the collection grows, up to capacity. Images that do not fit are
// dropped. Filled slots are never overwritten and current is not modified.
func AssignBatch(current Collection, start int, images []string, capacity int) Collection {
	next := current.Clone()
	if capacity <= 0 {
		return Collection{}
	}
	cursor := max(start, 0)
	for _, img := range images {
		if img == Empty {
			continue
		}
		pos := nextEmpty(next, cursor)
		if pos >= capacity {
			break
		}
		if pos < len(next) {
			next[pos] = img
		} else {
			next = append(next, img)
		}
		cursor = pos + 1
	}
	if len(next) > capacity {
		next = next[:capacity]
	}
	return next
}

// nextEmpty returns the first empty index at or after from, or len(c) when
// the caller has to append.
func nextEmpty(c Collection, from int) int {
	for i := from; i < len(c); i++ {
		if c[i] == Empty {
			return i
		}
	}
	return len(c)
}

// ReplaceSingle is the single-capacity upload: the newest image replaces
// the whole collection.
func ReplaceSingle(image string) Collection {
	return Collection{image}
}

// Remove drops the slot at index. A collection never becomes empty: when
// the last slot goes (always the case at capacity 1) it resets to a single
// empty slot. An out-of-range index leaves the collection unchanged.
func Remove(current Collection, index, capacity int) Collection {
	if index < 0 || index >= len(current) {
		return current.Clone()
	}
	if capacity <= 1 {
		return New()
	}
	next := make(Collection, 0, len(current)-1)
	next = append(next, current[:index]...)
	next = append(next, current[index+1:]...)
	if len(next) == 0 {
		return New()
	}
	return next
}

// AddEmptySlot appends one empty slot while below capacity.
func AddEmptySlot(current Collection, capacity int) Collection {
	next := current.Clone()
	if len(next) < capacity {
		next = append(next, Empty)
	}
	return next
}
