package parseredux

import "context"

// ActionKind tags the commands understood by the Store's reducer.
type ActionKind byte

const (
	ActionInitializeState ActionKind = iota
	ActionRemoveState
	ActionSetServerData
	ActionSetPendingOp
	ActionPushPendingState
	ActionPopPendingState
	ActionMergeFirstPendingState
	ActionCommitServerChanges
	ActionMigrateID
	ActionEnqueueTask
	ActionSetCurrentIdentity
	ActionClearCurrentIdentity
	ActionClearAllState
)

func (k ActionKind) String() string {
	switch k {
	case ActionInitializeState:
		return "initialize_state"
	case ActionRemoveState:
		return "remove_state"
	case ActionSetServerData:
		return "set_server_data"
	case ActionSetPendingOp:
		return "set_pending_op"
	case ActionPushPendingState:
		return "push_pending_state"
	case ActionPopPendingState:
		return "pop_pending_state"
	case ActionMergeFirstPendingState:
		return "merge_first_pending_state"
	case ActionCommitServerChanges:
		return "commit_server_changes"
	case ActionMigrateID:
		return "migrate_id"
	case ActionEnqueueTask:
		return "enqueue_task"
	case ActionSetCurrentIdentity:
		return "set_current_identity"
	case ActionClearCurrentIdentity:
		return "clear_current_identity"
	case ActionClearAllState:
		return "clear_all_state"
	default:
		return "unknown"
	}
}

// Action is one tagged command. Which fields matter depends on Kind;
// unused fields stay zero.
type Action struct {
	Kind     ActionKind
	Identity Identity
	Target   Identity       // MigrateID: the server-assigned identity
	Attr     string         // SetPendingOp
	Op       Op             // SetPendingOp; nil clears the attribute's pending op
	Attrs    map[string]any // SetServerData, CommitServerChanges, SetCurrentIdentity
	Task     Task           // EnqueueTask
	Ctx      context.Context
}

// Result carries whatever an action hands back to its dispatcher.
type Result struct {
	State  *ObjectState // RemoveState: the removed state, nil if none existed
	OpSet  OpSet        // PopPendingState: the detached oldest generation
	Handle *TaskHandle  // EnqueueTask
}

// Dispatch applies one action to the store. Actions apply strictly one
// at a time; no action's effect interleaves with another's. Dispatching
// never suspends; only callers doing I/O do.
func (st *Store) Dispatch(a Action) Result {
	st.lock.Lock()
	defer st.lock.Unlock()
	ActionCount.WithLabelValues(a.Kind.String()).Inc()
	return st.apply(a)
}

// apply is the single reducing function owning the state table and the
// current-identity cache. Callers hold st.lock.
func (st *Store) apply(a Action) (res Result) {
	switch a.Kind {
	case ActionInitializeState:
		st.initLocked(a.Identity)

	case ActionRemoveState:
		id := st.resolveLocked(a.Identity)
		if state, ok := st.states[id]; ok {
			delete(st.states, id)
			res.State = state
		}

	case ActionSetServerData, ActionCommitServerChanges:
		state := st.initLocked(a.Identity)
		mergeAttrs(state.ServerData, a.Attrs)

	case ActionSetPendingOp:
		state := st.initLocked(a.Identity)
		top := state.PendingOps[len(state.PendingOps)-1]
		if a.Op == nil {
			delete(top, a.Attr)
		} else {
			top[a.Attr] = a.Op
		}

	case ActionPushPendingState:
		state := st.initLocked(a.Identity)
		state.PendingOps = append(state.PendingOps, OpSet{})

	case ActionPopPendingState:
		state := st.initLocked(a.Identity)
		res.OpSet = state.PendingOps[0]
		if len(state.PendingOps) == 1 {
			// Never leave the stack empty.
			state.PendingOps[0] = OpSet{}
		} else {
			state.PendingOps = state.PendingOps[1:]
		}

	case ActionMergeFirstPendingState:
		id := st.resolveLocked(a.Identity)
		state := st.states[id]
		if state == nil || len(state.PendingOps) < 2 {
			panic("parse-redux: merge of first pending state requires two pending op sets")
		}
		first, second := state.PendingOps[0], state.PendingOps[1]
		for attr, older := range first {
			if newer, ok := second[attr]; ok {
				second[attr] = newer.MergeWith(older)
			} else {
				second[attr] = older
			}
		}
		state.PendingOps = state.PendingOps[1:]

	case ActionMigrateID:
		st.migrateLocked(a.Identity, a.Target)

	case ActionEnqueueTask:
		ctx := a.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		res.Handle = st.queueLocked(a.Identity).enqueue(ctx, a.Task)

	case ActionSetCurrentIdentity:
		st.sess.set(a.Identity, a.Attrs)

	case ActionClearCurrentIdentity:
		st.sess.clear()

	case ActionClearAllState:
		st.states = make(map[Identity]*ObjectState)
		st.aliases = make(map[Identity]Identity)
		st.queues = newQueueTable()
		st.sess.reset()
	}
	return
}

// initLocked resolves aliases, then gets or creates the object state.
// Initialization is idempotent.
func (st *Store) initLocked(id Identity) *ObjectState {
	id = st.resolveLocked(id)
	state, ok := st.states[id]
	if !ok {
		state = newObjectState()
		st.states[id] = state
	}
	return state
}

// resolveLocked follows id-migration aliases so that references created
// before a local id was migrated keep working.
func (st *Store) resolveLocked(id Identity) Identity {
	for {
		next, ok := st.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

func (st *Store) migrateLocked(from, to Identity) {
	from = st.resolveLocked(from)
	if from == to {
		return
	}
	if state, ok := st.states[from]; ok {
		delete(st.states, from)
		if _, taken := st.states[to]; !taken {
			st.states[to] = state
		}
	}
	st.aliases[from] = to
	if st.sess.state == sessionPresent && st.sess.identity == from {
		st.sess.identity = to
	}
}
