package nfc

import (
	"encoding/hex"
	"strings"
)

// MaxUIDLength is the longest identifier the reader chip reports for an
// ISO14443A target (double-size UID).
const MaxUIDLength = 7

// Identity is the snapshot of a detected tag's unique identifier.
//
// An Identity is a value type: the adapter replaces its cached copy on every
// successful presence check and hands out copies to everything downstream.
// A zero Identity (Len() == 0) means no tag has been detected.
type Identity struct {
	uid    [MaxUIDLength]byte
	length int
}

// NewIdentity builds an Identity from raw UID bytes. Bytes beyond
// MaxUIDLength are dropped.
func NewIdentity(uid []byte) Identity {
	var id Identity
	id.length = copy(id.uid[:], uid)
	return id
}

// Len returns the number of valid identifier bytes.
func (id Identity) Len() int {
	return id.length
}

// Bytes returns a copy of the valid identifier bytes.
func (id Identity) Bytes() []byte {
	out := make([]byte, id.length)
	copy(out, id.uid[:id.length])
	return out
}

// UID returns the identifier as upper-case hex, e.g. "04112233".
func (id Identity) UID() string {
	return strings.ToUpper(hex.EncodeToString(id.uid[:id.length]))
}

// IsZero reports whether no identifier has been captured.
func (id Identity) IsZero() bool {
	return id.length == 0
}

// Equal reports whether both identities carry the same identifier bytes.
func (id Identity) Equal(other Identity) bool {
	return id.length == other.length && id.uid == other.uid
}

func (id Identity) String() string {
	if id.IsZero() {
		return "<none>"
	}
	return id.UID()
}
