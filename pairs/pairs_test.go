package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNormalizes(t *testing.T) {
	assert.Equal(t, Pair{I: 1, J: 4}, New(4, 1))
	assert.Equal(t, Pair{I: 1, J: 4}, New(1, 4))
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet(New(0, 1), New(1, 0), New(2, 1))

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(Pair{I: 0, J: 1}))
	assert.True(t, s.Contains(Pair{I: 1, J: 2}))
	assert.False(t, s.Contains(Pair{I: 0, J: 2}))
}

func TestSetSorted(t *testing.T) {
	s := NewSet(New(3, 1), New(0, 2), New(0, 1), New(1, 2))

	assert.Equal(t, []Pair{
		{I: 0, J: 1},
		{I: 0, J: 2},
		{I: 1, J: 2},
		{I: 1, J: 3},
	}, s.Sorted())
}

func TestSetViewIDs(t *testing.T) {
	s := NewSet(New(5, 1), New(1, 3))

	assert.Equal(t, []uint32{1, 3, 5}, s.ViewIDs())
}
