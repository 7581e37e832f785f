package sgkey

import (
	"encoding/binary"
	"time"

	"github.com/turanzv/DCT/core/crypto/box"
	"github.com/turanzv/DCT/core/wire/tlv"
	"github.com/turanzv/DCT/transport"
)

// Wire tag numbers fixed by spec §4.2/§6.2.
const (
	tagCreationTime = 36  // TAG_CT
	tagGroupPK      = 150 // TAG_PK
	tagKeyRecords   = 130 // TAG_KRS
)

// MaxPubSize bounds a single key-record publication, matching the
// reference's maxPubSize (the NDN default content-store-friendly
// packet budget).
const MaxPubSize = 1024

// SealedSKSize is the length of a group secret key once sealed to one
// recipient: the 32-byte X25519 secret plus sealed-box overhead.
const SealedSKSize = box.KeySize + box.Overhead

// recordSize is the fixed size of one (thumbprint, sealed_sk) pair as
// carried in TAG_KRS (spec §3: "total = thumbprint_size + sealed_sk_size").
const recordSize = ThumbprintSize + SealedSKSize

// publicationOverhead accounts for name, signature and TLV framing
// outside the content's three tagged blocks (spec §4.2: "overhead
// (~96) accounts for name, signature, and TLV framing").
const publicationOverhead = 96

// MaxKR is the maximum number of sealed key records one key-record
// publication may carry. Every member of the trust domain must agree
// on this constant (spec §4.2).
const MaxKR = (MaxPubSize - box.KeySize - 8 - publicationOverhead) / recordSize

// MaxMembers is the member-table hard cap past which new membership
// requests are refused (spec §4.6's addGroupMem: "80*maxKR", supplemented
// from original_source/dist_sgkey.hpp since spec.md names the edge case
// without the constant).
const MaxMembers = 80 * MaxKR

// SealedRecord is one (recipient_thumbprint, sealed_sk) pair (spec §3).
type SealedRecord struct {
	TP     Thumbprint
	Sealed []byte // always SealedSKSize bytes
}

// KeyRecordContent is the parsed content of a key-record publication
// (spec §4.2).
type KeyRecordContent struct {
	CreationTime uint64 // microseconds since epoch
	GroupPK      []byte // 32 bytes, unencrypted
	Records      []SealedRecord
}

// EncodeKeyRecordContent serializes a key-record publication's content
// in the fixed tag order CT, PK, KRS. KRS may be empty (the degenerate
// publish-only-anchor case, spec §4.2), but the tag is still emitted --
// only the reference's rarely-hit true omission (no subscribers ever
// existing) is left as an empty block, never a missing one, since Go
// callers always have a (possibly empty) slice in hand.
func EncodeKeyRecordContent(creationTime uint64, groupPK []byte, records []SealedRecord) []byte {
	var buf []byte
	buf = tlv.AppendNumber(buf, tagCreationTime, creationTime)
	buf = tlv.AppendBlock(buf, tagGroupPK, groupPK)

	krs := make([]byte, 0, len(records)*recordSize)
	for _, r := range records {
		krs = append(krs, r.TP[:]...)
		krs = append(krs, r.Sealed...)
	}
	buf = tlv.AppendBlock(buf, tagKeyRecords, krs)
	return buf
}

// ParseKeyRecordContent parses a key-record publication's content,
// enforcing the fixed tag order (spec §4.5 step 7: "the first tlv
// should be type 36 ... second ... type 150 ... third ... type 130").
func ParseKeyRecordContent(content []byte) (KeyRecordContent, error) {
	p := tlv.NewParser(content)

	ctBlk, err := p.NextOfType(tagCreationTime)
	if err != nil {
		return KeyRecordContent{}, ErrMalformedPublication
	}
	ct, err := ctBlk.Number()
	if err != nil {
		return KeyRecordContent{}, ErrMalformedPublication
	}

	pkBlk, err := p.NextOfType(tagGroupPK)
	if err != nil {
		return KeyRecordContent{}, ErrMalformedPublication
	}
	if len(pkBlk.Value) != box.KeySize {
		return KeyRecordContent{}, ErrMalformedPublication
	}
	pk := append([]byte(nil), pkBlk.Value...)

	out := KeyRecordContent{CreationTime: ct, GroupPK: pk}

	if p.Empty() {
		// Degenerate form: TAG_KRS absent entirely.
		return out, nil
	}
	krsBlk, err := p.NextOfType(tagKeyRecords)
	if err != nil {
		return KeyRecordContent{}, ErrMalformedPublication
	}
	if len(krsBlk.Value)%recordSize != 0 {
		return KeyRecordContent{}, ErrMalformedPublication
	}
	n := len(krsBlk.Value) / recordSize
	out.Records = make([]SealedRecord, n)
	for i := 0; i < n; i++ {
		off := i * recordSize
		var r SealedRecord
		copy(r.TP[:], krsBlk.Value[off:off+ThumbprintSize])
		r.Sealed = append([]byte(nil), krsBlk.Value[off+ThumbprintSize:off+recordSize]...)
		out.Records[i] = r
	}
	return out, nil
}

// krComponent and mrComponent are the fixed name components that
// distinguish the two publication families (spec §6.2).
var (
	krComponent = []byte("kr")
	mrComponent = []byte("mr")
)

func encodeUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func decodeUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func encodeTimestamp(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(t.UnixMicro()))
	return b
}

// BuildKeyRecordName builds a key-record publication's name: <prefix>
// / "kr" / epoch / low_tp[0:4] / high_tp[0:4] / timestamp (spec §6.2).
func BuildKeyRecordName(prefix transport.Name, epoch uint32, low, high Thumbprint, ts time.Time) transport.Name {
	n := prefix.Append(krComponent)
	n = n.Append(encodeUint32(epoch))
	lowPfx := low.Prefix()
	highPfx := high.Prefix()
	n = n.Append(lowPfx[:])
	n = n.Append(highPfx[:])
	n = n.Append(encodeTimestamp(ts))
	return n
}

// BuildMembershipRequestName builds a membership-request publication's
// name: <prefix>/"mr"/timestamp (spec §6.2).
func BuildMembershipRequestName(prefix transport.Name, ts time.Time) transport.Name {
	return prefix.Append(mrComponent).Append(encodeTimestamp(ts))
}

// ParsedKeyRecordName is a key-record publication name broken back out
// into its components, for the receiver (spec §4.5).
type ParsedKeyRecordName struct {
	Epoch   uint32
	LowPfx  [PrefixSize]byte
	HighPfx [PrefixSize]byte
}

// ParseKeyRecordName extracts the epoch and thumbprint-range prefixes
// from a key-record name, given the length of the shared collection
// prefix that precedes "kr".
func ParseKeyRecordName(name transport.Name, prefixLen int) (ParsedKeyRecordName, error) {
	// name = prefix... , "kr", epoch, lowPfx, highPfx, ts
	idx := prefixLen + 1 // skip past the "kr" component
	if len(name) < idx+4 {
		return ParsedKeyRecordName{}, ErrMalformedPublication
	}
	if len(name[idx]) != 4 || len(name[idx+1]) != PrefixSize || len(name[idx+2]) != PrefixSize {
		return ParsedKeyRecordName{}, ErrMalformedPublication
	}
	var out ParsedKeyRecordName
	out.Epoch = decodeUint32(name[idx])
	copy(out.LowPfx[:], name[idx+1])
	copy(out.HighPfx[:], name[idx+2])
	return out, nil
}
