package parseredux

// OpSet is one generation of pending local edits, keyed by attribute.
// A Store holds a stack of these per object; a new save detaches the
// oldest generation while edits made during the save land in the newest.
type OpSet map[string]Op

// ObjectState is everything the Store knows about one live Identity:
// the last server-confirmed attribute snapshot and the stack of pending
// op generations, oldest at index 0.
//
// PendingOps never goes empty while the state is initialized; the top
// set accumulates new edits until the next save is dispatched.
type ObjectState struct {
	ServerData map[string]any
	PendingOps []OpSet
}

func newObjectState() *ObjectState {
	return &ObjectState{
		ServerData: make(map[string]any),
		PendingOps: []OpSet{{}},
	}
}

// estimate computes serverData with every pending generation applied in
// order, oldest to newest.
func (os *ObjectState) estimate() map[string]any {
	est := make(map[string]any, len(os.ServerData))
	for k, v := range os.ServerData {
		est[k] = v
	}
	for _, set := range os.PendingOps {
		for attr, op := range set {
			next := op.Apply(est[attr])
			if next == Removed {
				delete(est, attr)
			} else {
				est[attr] = next
			}
		}
	}
	return est
}

// mergeAttrs is the last-write-wins attribute merge used by
// SetServerData and CommitServerChanges. A Removed value deletes the
// key instead of storing it.
func mergeAttrs(dst, attrs map[string]any) {
	for k, v := range attrs {
		if v == Removed {
			delete(dst, k)
		} else {
			dst[k] = v
		}
	}
}

func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func copyOpSet(set OpSet) OpSet {
	out := make(OpSet, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out
}
