package parseredux

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
)

// Identity is the stable key of one logical server-backed entity:
// the entity type name plus either a client-generated local id or a
// server-assigned object id. All per-object bookkeeping in the Store
// is indexed by Identity.
//
// A local Identity is re-keyed to its server-assigned one through the
// MigrateID action; references holding the old Identity keep resolving
// via the Store's alias table.
type Identity struct {
	Type string
	ID   string
}

const localIDPrefix = "local-"

// NewLocalIdentity mints an Identity for an entity that has never been
// saved, using a client-generated id.
func NewLocalIdentity(typeName string) Identity {
	return Identity{Type: typeName, ID: localIDPrefix + uuid.NewString()}
}

// IsLocal reports whether the id is client-generated, i.e. the entity
// has not been assigned a server id yet.
func (i Identity) IsLocal() bool {
	return strings.HasPrefix(i.ID, localIDPrefix)
}

func (i Identity) IsZero() bool {
	return i.Type == "" && i.ID == ""
}

func (i Identity) String() string {
	return i.Type + "#" + i.ID
}

// Hash is a stable 64-bit digest of the identity, usable as a sharding
// or log key without exposing the raw id.
func (i Identity) Hash() uint64 {
	return xxhash.Sum64String(i.Type + "\x00" + i.ID)
}

// TokenDigest is a short digest of a session token for logs and
// metrics. Raw tokens never reach the log output.
func TokenDigest(token string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(token))
}
