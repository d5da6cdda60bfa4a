package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap(t *testing.T) {
	s := MakeBitmap(4)

	s.Set(1)
	s.Set(100)

	assert.True(t, s.IsSet(1))
	assert.True(t, s.IsSet(100))
	assert.False(t, s.IsSet(2))
	assert.False(t, s.IsSet(1000))
	assert.Equal(t, 2, s.Size())
}

func TestBitmapIntersects(t *testing.T) {
	a := MakeBitmap(4)
	b := MakeBitmap(4)

	a.Set(3)
	b.Set(4)

	assert.False(t, a.Intersects(b))
	assert.False(t, b.Intersects(a))

	b.Set(3)

	assert.True(t, a.Intersects(b))
	assert.True(t, b.Intersects(a))

	var zero Bitmap

	assert.False(t, zero.Intersects(a))
	assert.False(t, a.Intersects(zero))
}

func TestBitmapRange(t *testing.T) {
	s := MakeBitmap(4)

	s.Set(0)
	s.Set(65)
	s.Set(130)

	var got []int

	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	assert.Equal(t, []int{0, 65, 130}, got)
}
