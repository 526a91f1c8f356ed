package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sunlang/suntv/pkg/interp"
)

func TestValueAccessors(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	v, err := interp.I32(42).AsI32()
	r.NoError(err)
	r.Equal(int32(42), v)

	l, err := interp.I64(-5).AsI64()
	r.NoError(err)
	r.Equal(int64(-5), l)

	b, err := interp.Bool(true).AsBool()
	r.NoError(err)
	r.True(b)

	ref, err := interp.RefValue(3).AsRef()
	r.NoError(err)
	r.Equal(int32(3), ref)

	// Null reads as reference 0.
	ref, err = interp.Null().AsRef()
	r.NoError(err)
	r.Equal(int32(0), ref)
}

func TestValueAccessorMismatch(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	_, err := interp.I32(1).AsI64()
	r.Error(err)
	_, err = interp.I64(1).AsI32()
	r.Error(err)
	_, err = interp.Bool(true).AsI32()
	r.Error(err)
	_, err = interp.I32(0).AsRef()
	r.Error(err)
	_, err = interp.RefValue(1).AsBool()
	r.Error(err)
}

func TestValueZeroAndTruthy(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	r.True(interp.I32(0).IsZero())
	r.True(interp.I64(0).IsZero())
	r.True(interp.Bool(false).IsZero())
	r.True(interp.Null().IsZero())
	r.False(interp.I32(-1).IsZero())
	r.False(interp.RefValue(2).IsZero())

	r.True(interp.I32(7).Truthy())
	r.True(interp.Bool(true).Truthy())
	r.False(interp.I64(0).Truthy())
}

func TestValueString(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	r.Equal("i32:42", interp.I32(42).String())
	r.Equal("i64:-5", interp.I64(-5).String())
	r.Equal("bool:true", interp.Bool(true).String())
	r.Equal("ref:3", interp.RefValue(3).String())
	r.Equal("null", interp.Null().String())
}

func TestValueEqual(t *testing.T) {
	t.Parallel()
	r := require.New(t)

	r.True(interp.I32(1).Equal(interp.I32(1)))
	r.False(interp.I32(1).Equal(interp.I64(1)))
	r.False(interp.I32(1).Equal(interp.I32(2)))
	r.True(interp.Null().Equal(interp.Null()))
}
