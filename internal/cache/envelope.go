package cache

import (
	"encoding/binary"
	"time"
)

// L2 payloads carry their absolute expiry so a reader on another instance
// never keeps a value past the lifetime its writer gave it.
const envelopeHeader = 8

func sealEnvelope(expiresAt time.Time, data []byte) []byte {
	out := make([]byte, envelopeHeader+len(data))
	binary.BigEndian.PutUint64(out, uint64(expiresAt.UnixMilli()))
	copy(out[envelopeHeader:], data)
	return out
}

func openEnvelope(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < envelopeHeader {
		return time.Time{}, nil, false
	}
	ms := int64(binary.BigEndian.Uint64(raw))
	return time.UnixMilli(ms), raw[envelopeHeader:], true
}
