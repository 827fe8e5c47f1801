package parseredux

// Op is one composable, not-yet-confirmed edit to a single attribute.
// The Store never looks inside an Op; it only applies it to an estimated
// value and folds it into the Op queued before it.
type Op interface {
	// Apply produces the new attribute value given the previous one.
	// prev is nil when the attribute is currently unset. Returning
	// Removed deletes the attribute from the estimate.
	Apply(prev any) any

	// MergeWith folds prev (an older op for the same attribute) into
	// the receiver, producing one op equivalent to "prev, then this".
	MergeWith(prev Op) Op
}

type removed struct{}

// Removed marks an attribute for deletion. It is distinct from every
// legal attribute value: SetServerData deletes keys mapped to it, and
// an Op whose Apply returns it erases the attribute from the estimate.
var Removed any = removed{}

// SetOp replaces the attribute value outright.
type SetOp struct {
	Value any
}

func (op SetOp) Apply(prev any) any { return op.Value }

// A set wipes out whatever was queued before it.
func (op SetOp) MergeWith(prev Op) Op { return op }

// UnsetOp deletes the attribute.
type UnsetOp struct{}

func (UnsetOp) Apply(prev any) any { return Removed }

func (op UnsetOp) MergeWith(prev Op) Op { return op }

// IncrementOp adds an amount to a numeric attribute; an unset attribute
// counts as zero.
type IncrementOp struct {
	Amount float64
}

func (op IncrementOp) Apply(prev any) any {
	return op.Amount + numeric(prev)
}

func (op IncrementOp) MergeWith(prev Op) Op {
	switch p := prev.(type) {
	case SetOp:
		return SetOp{Value: op.Apply(p.Value)}
	case UnsetOp:
		return SetOp{Value: op.Amount}
	case IncrementOp:
		return IncrementOp{Amount: p.Amount + op.Amount}
	default:
		return op
	}
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
