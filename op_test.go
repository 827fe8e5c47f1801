package parseredux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOpAbsorbsAnything(t *testing.T) {
	op := SetOp{Value: "new"}
	assert.Equal(t, op, op.MergeWith(SetOp{Value: "old"}))
	assert.Equal(t, op, op.MergeWith(IncrementOp{Amount: 5}))
	assert.Equal(t, "new", op.Apply("old"))
}

func TestUnsetOp(t *testing.T) {
	op := UnsetOp{}
	assert.Equal(t, Removed, op.Apply("anything"))
	assert.Equal(t, Op(op), op.MergeWith(SetOp{Value: "x"}))
}

func TestIncrementOpApply(t *testing.T) {
	op := IncrementOp{Amount: 2}
	assert.Equal(t, 2.0, op.Apply(nil))
	assert.Equal(t, 5.0, op.Apply(3))
	assert.Equal(t, 5.5, op.Apply(3.5))
	assert.Equal(t, 7.0, op.Apply(int64(5)))
}

func TestIncrementOpMerge(t *testing.T) {
	inc := IncrementOp{Amount: 2}
	// Onto a set: folds into the set value.
	assert.Equal(t, Op(SetOp{Value: 12.0}), inc.MergeWith(SetOp{Value: 10}))
	// Onto an unset: the attribute restarts from zero.
	assert.Equal(t, Op(SetOp{Value: 2.0}), inc.MergeWith(UnsetOp{}))
	// Onto another increment: amounts add.
	assert.Equal(t, Op(IncrementOp{Amount: 5}), inc.MergeWith(IncrementOp{Amount: 3}))
}
