package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sunlang/suntv/pkg/interp"
)

func TestHeapAllocateObject(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	r.Equal(int32(1), h.NextRef())

	a := h.AllocateObject()
	b := h.AllocateObject()
	r.Equal(int32(1), a)
	r.Equal(int32(2), b)
	r.NotEqual(a, b)
	r.Equal(int32(3), h.NextRef())
}

func TestHeapFieldReadWrite(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	obj := h.AllocateObject()

	// Uninitialized fields default to i32 zero.
	r.True(h.ReadField(obj, "x").Equal(interp.I32(0)))

	h.WriteField(obj, "x", interp.I32(42))
	r.True(h.ReadField(obj, "x").Equal(interp.I32(42)))

	h.WriteField(obj, "x", interp.I64(7))
	r.True(h.ReadField(obj, "x").Equal(interp.I64(7)))
	r.True(h.ReadField(obj, "y").Equal(interp.I32(0)))
}

func TestHeapArrayReadWrite(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	arr, err := h.AllocateArray(5)
	r.NoError(err)

	length, err := h.ArrayLength(arr)
	r.NoError(err)
	r.Equal(int32(5), length)

	for i := int32(0); i < 5; i++ {
		v, err := h.ReadArray(arr, i)
		r.NoError(err)
		r.True(v.Equal(interp.I32(0)), "allocation default at %d", i)
	}

	r.NoError(h.WriteArray(arr, 2, interp.I32(99)))
	v, err := h.ReadArray(arr, 2)
	r.NoError(err)
	r.True(v.Equal(interp.I32(99)))

	// Untouched neighbours keep the default.
	v, err = h.ReadArray(arr, 1)
	r.NoError(err)
	r.True(v.Equal(interp.I32(0)))
}

func TestHeapArrayBounds(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	arr, err := h.AllocateArray(3)
	r.NoError(err)

	for _, idx := range []int32{-1, 3} {
		_, err := h.ReadArray(arr, idx)
		trap, ok := interp.AsTrap(err)
		r.True(ok, "index %d should trap", idx)
		r.Equal(interp.TrapIndexOutOfBounds, trap.Kind)

		err = h.WriteArray(arr, idx, interp.I32(1))
		trap, ok = interp.AsTrap(err)
		r.True(ok)
		r.Equal(interp.TrapIndexOutOfBounds, trap.Kind)
	}
}

func TestHeapNegativeArrayLength(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	_, err := h.AllocateArray(-1)
	trap, ok := interp.AsTrap(err)
	r.True(ok)
	r.Equal(interp.TrapNegativeArrayLength, trap.Kind)
}

func TestHeapInvalidRef(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	_, err := h.ReadArray(42, 0)
	trap, ok := interp.AsTrap(err)
	r.True(ok)
	r.Equal(interp.TrapInvalidArrayRef, trap.Kind)

	_, err = h.ArrayLength(42)
	trap, ok = interp.AsTrap(err)
	r.True(ok)
	r.Equal(interp.TrapInvalidArrayRef, trap.Kind)

	// An object ref is not an array ref.
	obj := h.AllocateObject()
	_, err = h.ArrayLength(obj)
	_, ok = interp.AsTrap(err)
	r.True(ok)
}

func TestHeapCloneIsolation(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	arr, err := h.AllocateArray(2)
	r.NoError(err)
	r.NoError(h.WriteArray(arr, 0, interp.I32(1)))
	obj := h.AllocateObject()
	h.WriteField(obj, "f", interp.I32(5))

	c := h.Clone()
	r.NoError(c.WriteArray(arr, 0, interp.I32(100)))
	c.WriteField(obj, "f", interp.I32(500))
	c.AllocateObject()

	v, err := h.ReadArray(arr, 0)
	r.NoError(err)
	r.True(v.Equal(interp.I32(1)), "clone writes must not leak back")
	r.True(h.ReadField(obj, "f").Equal(interp.I32(5)))
	r.NotEqual(h.NextRef(), c.NextRef())
}

func TestHeapDump(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	h := interp.NewHeap()
	arr, err := h.AllocateArray(2)
	r.NoError(err)
	r.NoError(h.WriteArray(arr, 1, interp.I32(9)))
	obj := h.AllocateObject()
	h.WriteField(obj, "count", interp.I32(3))

	dump := h.Dump()
	r.Contains(dump, "Next ref: 3")
	r.Contains(dump, "ref:2.count = i32:3")
	r.Contains(dump, "ref:1[2]")
	r.Contains(dump, "i32:9")
}
