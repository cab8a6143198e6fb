package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const version byte = 1

// Entry flag bits.
const (
	FlagNegative byte = 1 << 0 // cached absence; payload is empty
	FlagStale    byte = 1 << 1 // resurrected previous value
)

var (
	ErrCorrupt = errors.New("strata: corrupt entry")
	magic4     = [...]byte{'S', 'T', 'R', 'A'}
)

// Entry is the decoded form of a stored cache entry. ExpiresAt is the logical
// expiry in unix nanoseconds; 0 means the entry never expires. The store's own
// TTL may outlive ExpiresAt so that an expired body stays readable for
// resurrection.
type Entry struct {
	Flags     byte
	ExpiresAt int64
	Payload   []byte
}

func (e Entry) Negative() bool { return e.Flags&FlagNegative != 0 }
func (e Entry) Stale() bool    { return e.Flags&FlagStale != 0 }

// Expired reports whether the entry's logical TTL has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() >= e.ExpiresAt
}

// Remaining returns the logical TTL left at now. Zero means no expiry;
// already-expired entries return a negative duration.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.ExpiresAt == 0 {
		return 0
	}
	return time.Duration(e.ExpiresAt - now.UnixNano())
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an entry:
//
//	magic(4) | ver(1) | flags(1) | expiresAt(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(e.Flags)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.ExpiresAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses a framed entry. Framing is strict: short buffers, unknown
// versions and trailing bytes are all rejected as corrupt.
func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}

	e := Entry{Flags: b[5]}
	off := 6

	e.ExpiresAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	e.Payload = b[off : off+vlen]
	return e, nil
}
