package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeapPop(t *testing.T) {
	h := Heap[uint64]{}
	for i := uint64(0); i < 64; i++ {
		h.Push(i ^ 17)
	}
	for i := uint64(0); i < 64; i++ {
		assert.Equal(t, i, h.Pop())
	}
}

func TestHeapPeek(t *testing.T) {
	h := Heap[uint64]{}
	h.Push(3)
	h.Push(1)
	h.Push(2)
	assert.Equal(t, uint64(1), h.Peek())
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, uint64(1), h.Pop())
	assert.Equal(t, uint64(2), h.Peek())
}
