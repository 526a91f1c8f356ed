package interp

import (
	"fmt"
	"sort"
	"strings"
)

type fieldKey struct {
	ref  Ref
	name string
}

// Heap is the interpreter's object and array store. Objects are sparse field
// maps; arrays are dense value sequences with a mirrored length map. Fresh
// references are allocated from a monotonically increasing counter starting
// at 1 and are never reused for the heap's lifetime.
type Heap struct {
	nextRef Ref
	fields  map[fieldKey]Value
	arrays  map[Ref][]Value
	lengths map[Ref]int32
}

func NewHeap() *Heap {
	return &Heap{
		nextRef: 1,
		fields:  make(map[fieldKey]Value),
		arrays:  make(map[Ref][]Value),
		lengths: make(map[Ref]int32),
	}
}

// NextRef returns the next reference the heap would allocate.
func (h *Heap) NextRef() Ref { return h.nextRef }

// AllocateObject returns a fresh reference. Fields have no default
// initialization; reading an unset field yields I32(0).
func (h *Heap) AllocateObject() Ref {
	ref := h.nextRef
	h.nextRef++
	return ref
}

// AllocateArray returns a fresh reference to a length-sized array with every
// element initialized to I32(0). A negative length is a runtime trap.
func (h *Heap) AllocateArray(length int32) (Ref, error) {
	if length < 0 {
		return 0, newTrap(TrapNegativeArrayLength)
	}
	ref := h.nextRef
	h.nextRef++

	elems := make([]Value, length)
	for i := range elems {
		elems[i] = I32(0)
	}
	h.arrays[ref] = elems
	h.lengths[ref] = length
	return ref, nil
}

// ReadField returns the stored value, or I32(0) for unset fields.
func (h *Heap) ReadField(obj Ref, field string) Value {
	if v, ok := h.fields[fieldKey{obj, field}]; ok {
		return v
	}
	return I32(0)
}

func (h *Heap) WriteField(obj Ref, field string, v Value) {
	h.fields[fieldKey{obj, field}] = v
}

func (h *Heap) ReadArray(arr Ref, index int32) (Value, error) {
	elems, ok := h.arrays[arr]
	if !ok {
		return Value{}, newTrap(TrapInvalidArrayRef)
	}
	if index < 0 || int(index) >= len(elems) {
		return Value{}, newTrap(TrapIndexOutOfBounds)
	}
	return elems[index], nil
}

func (h *Heap) WriteArray(arr Ref, index int32, v Value) error {
	elems, ok := h.arrays[arr]
	if !ok {
		return newTrap(TrapInvalidArrayRef)
	}
	if index < 0 || int(index) >= len(elems) {
		return newTrap(TrapIndexOutOfBounds)
	}
	elems[index] = v
	return nil
}

func (h *Heap) ArrayLength(arr Ref) (int32, error) {
	length, ok := h.lengths[arr]
	if !ok {
		return 0, newTrap(TrapInvalidArrayRef)
	}
	return length, nil
}

// Clone deep-copies the heap so an Execute call can take an initial heap by
// value without mutating the caller's copy.
func (h *Heap) Clone() *Heap {
	c := &Heap{
		nextRef: h.nextRef,
		fields:  make(map[fieldKey]Value, len(h.fields)),
		arrays:  make(map[Ref][]Value, len(h.arrays)),
		lengths: make(map[Ref]int32, len(h.lengths)),
	}
	for k, v := range h.fields {
		c.fields[k] = v
	}
	for ref, elems := range h.arrays {
		c.arrays[ref] = append([]Value(nil), elems...)
	}
	for ref, length := range h.lengths {
		c.lengths[ref] = length
	}
	return c
}

// Dump renders the heap contents for debugging and test failure output.
func (h *Heap) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Heap Dump ===\n")
	fmt.Fprintf(&b, "Next ref: %d\n", h.nextRef)

	if len(h.fields) > 0 {
		fmt.Fprintf(&b, "Fields:\n")
		keys := make([]fieldKey, 0, len(h.fields))
		for k := range h.fields {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].ref != keys[j].ref {
				return keys[i].ref < keys[j].ref
			}
			return keys[i].name < keys[j].name
		})
		for _, k := range keys {
			fmt.Fprintf(&b, "  ref:%d.%s = %s\n", k.ref, k.name, h.fields[k])
		}
	}

	if len(h.arrays) > 0 {
		fmt.Fprintf(&b, "Arrays:\n")
		refs := make([]Ref, 0, len(h.arrays))
		for ref := range h.arrays {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
		for _, ref := range refs {
			elems := h.arrays[ref]
			fmt.Fprintf(&b, "  ref:%d[%d]", ref, h.lengths[ref])
			if len(elems) > 0 {
				parts := make([]string, len(elems))
				for i, e := range elems {
					parts[i] = e.String()
				}
				fmt.Fprintf(&b, " = {%s}", strings.Join(parts, ", "))
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	fmt.Fprintf(&b, "=================\n")
	return b.String()
}
