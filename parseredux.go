package parseredux

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/lemol/parse-redux/utils"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	// StorageDir, when set, makes Open back the store with pebble at
	// that path. Empty means in-memory storage.
	StorageDir string

	// StorageKeyPrefix namespaces persisted keys, so several apps can
	// share one storage backend.
	StorageKeyPrefix string

	// UserType is the entity type of the current session owner.
	UserType string

	LogLevel  slog.Level
	Logger    utils.Logger
	Storage   Storage
	Transport Transport
}

func (o *Options) SetDefaults() {
	if o.StorageKeyPrefix == "" {
		o.StorageKeyPrefix = "parse"
	}
	if o.UserType == "" {
		o.UserType = "_User"
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(o.LogLevel)
	}
}

// Store owns all client-side object state: the table of per-identity
// object states, the id-migration aliases, the per-identity task
// queues, and the current-identity cache. Every mutation goes through
// Dispatch, which applies exactly one action at a time.
type Store struct {
	lock    sync.Mutex
	states  map[Identity]*ObjectState
	aliases map[Identity]Identity
	queues  *xsync.MapOf[Identity, *taskQueue]
	sess    session

	storage    Storage
	ownStorage bool
	transport  Transport
	log        utils.Logger
	opts       Options
}

var ErrNoTransport = errors.New("parse-redux: no transport configured")

// Open builds a Store from options. With Options.StorageDir set it
// opens a pebble-backed storage and owns its lifetime; otherwise it
// uses Options.Storage, falling back to in-memory storage.
func Open(opts Options) (*Store, error) {
	opts.SetDefaults()
	st := &Store{
		states:    make(map[Identity]*ObjectState),
		aliases:   make(map[Identity]Identity),
		queues:    newQueueTable(),
		storage:   opts.Storage,
		transport: opts.Transport,
		log:       opts.Logger,
		opts:      opts,
	}
	st.sess.reset()
	if opts.StorageDir != "" {
		ps, err := OpenPebbleStorage(opts.StorageDir)
		if err != nil {
			return nil, err
		}
		st.storage = ps
		st.ownStorage = true
	}
	if st.storage == nil {
		st.storage = NewMemStorage()
	}
	return st, nil
}

func (st *Store) Close() error {
	if st.ownStorage {
		return st.storage.Close()
	}
	return nil
}

// Action wrappers, one per store operation. These are the surface the
// entity layer programs against.

func (st *Store) InitializeState(id Identity) {
	st.Dispatch(Action{Kind: ActionInitializeState, Identity: id})
}

// RemoveState deletes the entry and returns it, so callers can replay
// its pending ops. Returns nil when the identity was never initialized.
func (st *Store) RemoveState(id Identity) *ObjectState {
	return st.Dispatch(Action{Kind: ActionRemoveState, Identity: id}).State
}

func (st *Store) SetServerData(id Identity, attrs map[string]any) {
	st.Dispatch(Action{Kind: ActionSetServerData, Identity: id, Attrs: attrs})
}

// SetPendingOp writes op into the newest pending generation. A nil op
// clears the attribute's pending edit without touching server data.
func (st *Store) SetPendingOp(id Identity, attr string, op Op) {
	st.Dispatch(Action{Kind: ActionSetPendingOp, Identity: id, Attr: attr, Op: op})
}

// PushPendingState opens a fresh pending generation. Called right
// before a save goes out, so edits made during the save accumulate
// separately from the ops being sent.
func (st *Store) PushPendingState(id Identity) {
	st.Dispatch(Action{Kind: ActionPushPendingState, Identity: id})
}

// PopPendingState detaches and returns the oldest pending generation.
func (st *Store) PopPendingState(id Identity) OpSet {
	return st.Dispatch(Action{Kind: ActionPopPendingState, Identity: id}).OpSet
}

// MergeFirstPendingState folds the oldest pending generation into the
// one above it, newer ops winning per attribute. Used to fold a failed
// save into a retry. Panics unless at least two generations exist.
func (st *Store) MergeFirstPendingState(id Identity) {
	st.Dispatch(Action{Kind: ActionMergeFirstPendingState, Identity: id})
}

// CommitServerChanges records the attributes a successful save or fetch
// confirmed. Mechanically identical to SetServerData; the name states
// the intent.
func (st *Store) CommitServerChanges(id Identity, attrs map[string]any) {
	st.Dispatch(Action{Kind: ActionCommitServerChanges, Identity: id, Attrs: attrs})
}

// MigrateID re-keys a local identity to its server-assigned one.
// References via the old identity keep resolving.
func (st *Store) MigrateID(from, to Identity) {
	st.Dispatch(Action{Kind: ActionMigrateID, Identity: from, Target: to})
}

// EnqueueTask queues asynchronous work against one identity. Work for
// the same identity may run concurrently, but effects apply strictly in
// enqueue order; different identities never wait on each other.
func (st *Store) EnqueueTask(ctx context.Context, id Identity, task Task) *TaskHandle {
	return st.Dispatch(Action{Kind: ActionEnqueueTask, Identity: id, Task: task, Ctx: ctx}).Handle
}

// ClearAllState drops every object state, alias, queued task and the
// current-identity cache in one step. Used for logout and test teardown.
func (st *Store) ClearAllState() {
	st.Dispatch(Action{Kind: ActionClearAllState})
}

// Queries. All return empty defaults for an unknown identity.

func (st *Store) GetServerData(id Identity) map[string]any {
	st.lock.Lock()
	defer st.lock.Unlock()
	state, ok := st.states[st.resolveLocked(id)]
	if !ok {
		return map[string]any{}
	}
	return copyAttrs(state.ServerData)
}

func (st *Store) GetPendingOps(id Identity) []OpSet {
	st.lock.Lock()
	defer st.lock.Unlock()
	state, ok := st.states[st.resolveLocked(id)]
	if !ok {
		return nil
	}
	sets := make([]OpSet, 0, len(state.PendingOps))
	for _, set := range state.PendingOps {
		sets = append(sets, copyOpSet(set))
	}
	return sets
}

// EstimateAttributes is server data with every pending generation
// applied in order, oldest to newest.
func (st *Store) EstimateAttributes(id Identity) map[string]any {
	st.lock.Lock()
	defer st.lock.Unlock()
	state, ok := st.states[st.resolveLocked(id)]
	if !ok {
		return map[string]any{}
	}
	return state.estimate()
}

func (st *Store) queueLocked(id Identity) *taskQueue {
	id = st.resolveLocked(id)
	q, _ := st.queues.LoadOrCompute(id, func() *taskQueue {
		return newTaskQueue()
	})
	return q
}

func newQueueTable() *xsync.MapOf[Identity, *taskQueue] {
	return xsync.NewMapOf[Identity, *taskQueue]()
}
