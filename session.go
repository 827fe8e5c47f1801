package parseredux

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// The current-identity cache is a three-state machine. The distinction
// that matters is between "memory has no answer yet" and "memory
// authoritatively says nobody is signed in": only the former triggers
// storage I/O on a read.
type sessionState byte

const (
	// sessionUnknown: memory unpopulated, storage never consulted.
	sessionUnknown sessionState = iota
	// sessionPresent: memory holds the current session owner.
	sessionPresent
	// sessionAbsent: memory has been reconciled with storage at least
	// once and there is no current owner; answered without I/O.
	sessionAbsent
)

type session struct {
	state    sessionState
	identity Identity
	attrs    map[string]any
}

func (s *session) reset() {
	*s = session{state: sessionUnknown}
}

func (s *session) set(id Identity, attrs map[string]any) {
	s.state = sessionPresent
	s.identity = id
	s.attrs = attrs
}

func (s *session) clear() {
	*s = session{state: sessionAbsent}
}

// CurrentUser is the distinguished session-owner entity.
type CurrentUser struct {
	Identity Identity
	Attrs    map[string]any
}

func (u *CurrentUser) SessionToken() string {
	token, _ := u.Attrs["sessionToken"].(string)
	return token
}

// A revocable session token must be invalidated server-side on logout.
func isRevocable(token string) bool {
	return strings.HasPrefix(token, "r:")
}

type persistedUser struct {
	Type       string         `json:"type"`
	ObjectID   string         `json:"objectId"`
	Attributes map[string]any `json:"attributes"`
}

func encodePersistedUser(u *CurrentUser) ([]byte, error) {
	raw, err := json.Marshal(persistedUser{
		Type:       u.Identity.Type,
		ObjectID:   u.Identity.ID,
		Attributes: u.Attrs,
	})
	return raw, errors.Wrap(err, "encode current user")
}

// decodePersistedUser reads either the current envelope format or a
// legacy flat snapshot, translating the legacy field names
// (_id -> objectId, _sessionToken -> sessionToken) on the way in.
func decodePersistedUser(raw []byte, userType string) (*CurrentUser, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode current user")
	}
	if attrs, ok := doc["attributes"].(map[string]any); ok {
		typeName, _ := doc["type"].(string)
		if typeName == "" {
			typeName = userType
		}
		oid, _ := doc["objectId"].(string)
		return &CurrentUser{Identity: Identity{Type: typeName, ID: oid}, Attrs: attrs}, nil
	}
	// Legacy flat snapshot.
	if id, ok := doc["_id"]; ok {
		if _, taken := doc["objectId"]; !taken {
			doc["objectId"] = id
		}
		delete(doc, "_id")
	}
	if token, ok := doc["_sessionToken"]; ok {
		if _, taken := doc["sessionToken"]; !taken {
			doc["sessionToken"] = token
		}
		delete(doc, "_sessionToken")
	}
	oid, _ := doc["objectId"].(string)
	return &CurrentUser{Identity: Identity{Type: userType, ID: oid}, Attrs: doc}, nil
}

func (st *Store) currentUserKey() string {
	return st.opts.StorageKeyPrefix + "/currentUser"
}

// CurrentUser returns the current session owner, or nil when nobody is
// signed in. Memory answers when it can; storage is consulted only in
// the unknown state, and the outcome makes memory authoritative either
// way.
func (st *Store) CurrentUser(ctx context.Context) (*CurrentUser, error) {
	if u, known := st.cachedUser(); known {
		return u, nil
	}
	return st.loadCurrentUser(ctx)
}

// CurrentUserSync is the no-suspension read. It refuses to run against
// an async-only storage rather than answer with stale or absent data.
func (st *Store) CurrentUserSync() (*CurrentUser, error) {
	if u, known := st.cachedUser(); known {
		return u, nil
	}
	if !st.storage.Sync() {
		return nil, ErrSyncUnavailable
	}
	return st.loadCurrentUser(context.Background())
}

func (st *Store) cachedUser() (*CurrentUser, bool) {
	st.lock.Lock()
	defer st.lock.Unlock()
	switch st.sess.state {
	case sessionPresent:
		SessionReadCount.WithLabelValues("memory").Inc()
		return &CurrentUser{Identity: st.sess.identity, Attrs: copyAttrs(st.sess.attrs)}, true
	case sessionAbsent:
		SessionReadCount.WithLabelValues("absent").Inc()
		return nil, true
	default:
		return nil, false
	}
}

func (st *Store) loadCurrentUser(ctx context.Context) (*CurrentUser, error) {
	raw, err := st.storage.Get(ctx, st.currentUserKey())
	SessionReadCount.WithLabelValues("storage").Inc()
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	st.lock.Lock()
	defer st.lock.Unlock()
	// A write may have landed while the read was in flight; memory wins.
	if st.sess.state != sessionUnknown {
		if st.sess.state == sessionAbsent {
			return nil, nil
		}
		return &CurrentUser{Identity: st.sess.identity, Attrs: copyAttrs(st.sess.attrs)}, nil
	}
	if err == ErrNotFound {
		st.dispatchLocked(Action{Kind: ActionClearCurrentIdentity})
		return nil, nil
	}
	u, err := decodePersistedUser(raw, st.opts.UserType)
	if err != nil {
		return nil, err
	}
	st.dispatchLocked(Action{Kind: ActionInitializeState, Identity: u.Identity})
	st.dispatchLocked(Action{Kind: ActionSetServerData, Identity: u.Identity, Attrs: copyAttrs(u.Attrs)})
	st.dispatchLocked(Action{Kind: ActionSetCurrentIdentity, Identity: u.Identity, Attrs: u.Attrs})
	return &CurrentUser{Identity: u.Identity, Attrs: copyAttrs(u.Attrs)}, nil
}

// dispatchLocked applies an action from a caller already holding
// st.lock.
func (st *Store) dispatchLocked(a Action) Result {
	ActionCount.WithLabelValues(a.Kind.String()).Inc()
	return st.apply(a)
}

// SetCurrentUser updates memory first, so reads within the process see
// the new owner even before the storage write settles, then awaits the
// persistent write.
func (st *Store) SetCurrentUser(ctx context.Context, u *CurrentUser) error {
	attrs := copyAttrs(u.Attrs)
	st.lock.Lock()
	st.dispatchLocked(Action{Kind: ActionInitializeState, Identity: u.Identity})
	st.dispatchLocked(Action{Kind: ActionSetServerData, Identity: u.Identity, Attrs: copyAttrs(attrs)})
	st.dispatchLocked(Action{Kind: ActionSetCurrentIdentity, Identity: u.Identity, Attrs: attrs})
	st.lock.Unlock()

	raw, err := encodePersistedUser(u)
	if err != nil {
		return err
	}
	return errors.Wrap(st.storage.Set(ctx, st.currentUserKey(), raw), "persist current user")
}

// Logout clears storage and memory; memory then authoritatively says
// "absent". A revocable session is invalidated server-side best-effort,
// without blocking the caller beyond the storage removal.
func (st *Store) Logout(ctx context.Context) error {
	u, err := st.CurrentUser(ctx)
	if err != nil {
		st.log.WarnCtx(ctx, "logout: could not load current user", "error", err)
	}
	st.Dispatch(Action{Kind: ActionClearCurrentIdentity})
	rmErr := st.storage.Remove(ctx, st.currentUserKey())

	if u != nil {
		if token := u.SessionToken(); isRevocable(token) {
			go st.revokeSession(token)
		}
	}
	return errors.Wrap(rmErr, "logout")
}

func (st *Store) revokeSession(token string) {
	if st.transport == nil {
		st.log.Warn("cannot revoke session", "token", TokenDigest(token), "error", ErrNoTransport)
		return
	}
	_, err := st.transport.Request(context.Background(), "POST", "/logout",
		map[string]any{"sessionToken": token})
	if err != nil {
		st.log.Warn("session revocation failed", "token", TokenDigest(token), "error", err)
		return
	}
	st.log.Debug("session revoked", "token", TokenDigest(token))
}
