package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
)

// NullID is the zero id. A MSGID carrying it means the message was rejected.
const NullID ID = 0

// ErrInvalidID is returned by ParseID for input that is not an encoded id.
var ErrInvalidID = errors.New("protocol: invalid id")

// ID is an opaque 64-bit identifier. It names chats, users and messages.
// A message id is either permanent (assigned by the server) or a
// transaction id generated locally for a message the server has not
// confirmed yet.
type ID uint64

// TxIDFlag is set on every transaction id and never on a
// server-assigned id, so the two id spaces cannot collide.
const TxIDFlag ID = 1 << 63

// IsTransaction reports whether id is a locally generated transaction id.
func (id ID) IsTransaction() bool {
	return id&TxIDFlag != 0
}

// IsNull reports whether id is NullID.
func (id ID) IsNull() bool {
	return id == NullID
}

// String renders the id as unpadded base64url of its big-endian bytes,
// the same form the server uses in its own logs.
func (id ID) String() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ParseID parses an id rendered by ID.String.
func ParseID(s string) (ID, error) {
	if base64.RawURLEncoding.DecodedLen(len(s)) != 8 {
		return NullID, ErrInvalidID
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) != 8 {
		return NullID, ErrInvalidID
	}
	return ID(binary.BigEndian.Uint64(b)), nil
}
