// Package descriptor models fixed-length binary feature descriptors (ORB-style) and their
// compact binary encoding.
package descriptor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ErrMalformed signals a descriptor payload that cannot be decoded.
var ErrMalformed = errors.New("malformed descriptor payload")

// MaxSize is the largest supported descriptor length in bytes.
const MaxSize = 1024

// codecVersion leads every encoded payload. Bump it when the layout changes so
// entries written by an older build decode as ErrMalformed.
const codecVersion byte = 1

// headerLen is the encoded header: version byte, uint16 descriptor size, uint32 count, big endian.
const headerLen = 7

// Descriptor is a single fixed-length binary feature vector.
type Descriptor struct {
	raw  []byte
	bits *bitset.BitSet
}

// New copies raw into a Descriptor.
func New(raw []byte) Descriptor {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Descriptor{raw: cp, bits: bitset.From(packWords(cp))}
}

// Size returns the descriptor length in bytes.
func (d Descriptor) Size() int { return len(d.raw) }

// Bytes returns the raw descriptor bytes. Callers must not modify the slice.
func (d Descriptor) Bytes() []byte { return d.raw }

// Distance returns the Hamming distance between d and o.
// ok is false when the descriptors have different lengths.
func (d Descriptor) Distance(o Descriptor) (dist int, ok bool) {
	if len(d.raw) != len(o.raw) || d.bits == nil || o.bits == nil {
		return 0, false
	}
	return int(d.bits.SymmetricDifferenceCardinality(o.bits)), true
}

// packWords packs bytes little-endian into 64-bit words, zero-padding the tail.
func packWords(raw []byte) []uint64 {
	words := make([]uint64, (len(raw)+7)/8)
	for i, b := range raw {
		words[i/8] |= uint64(b) << (8 * uint(i%8))
	}
	return words
}

// Set is an ordered collection of descriptors sharing one length.
type Set struct {
	size  int
	items []Descriptor
}

// NewSet builds a Set from individual descriptors. All descriptors must have the same
// non-zero length.
func NewSet(raw [][]byte) (Set, error) {
	if len(raw) == 0 {
		return Set{}, nil
	}
	size := len(raw[0])
	if size == 0 || size > MaxSize {
		return Set{}, fmt.Errorf("%w: descriptor size %d", ErrMalformed, size)
	}
	items := make([]Descriptor, len(raw))
	for i, r := range raw {
		if len(r) != size {
			return Set{}, fmt.Errorf("%w: descriptor %d has size %d, want %d", ErrMalformed, i, len(r), size)
		}
		items[i] = New(r)
	}
	return Set{size: size, items: items}, nil
}

// Split cuts a concatenation of equal-length descriptors into a Set.
func Split(size int, data []byte) (Set, error) {
	if size <= 0 || size > MaxSize {
		return Set{}, fmt.Errorf("%w: descriptor size %d", ErrMalformed, size)
	}
	if len(data)%size != 0 {
		return Set{}, fmt.Errorf("%w: %d bytes is not a multiple of descriptor size %d", ErrMalformed, len(data), size)
	}
	n := len(data) / size
	if n == 0 {
		return Set{}, nil
	}
	items := make([]Descriptor, n)
	for i := range items {
		items[i] = New(data[i*size : (i+1)*size])
	}
	return Set{size: size, items: items}, nil
}

// Len returns the number of descriptors.
func (s Set) Len() int { return len(s.items) }

// IsEmpty reports whether the set holds no descriptors.
func (s Set) IsEmpty() bool { return len(s.items) == 0 }

// Size returns the per-descriptor length in bytes (0 for an empty set).
func (s Set) Size() int { return s.size }

// At returns the i-th descriptor.
func (s Set) At(i int) Descriptor { return s.items[i] }

// Encode serializes the set: version byte, uint16 size, uint32 count, then the
// concatenated descriptors.
// An empty set encodes to nil.
func (s Set) Encode() []byte {
	if s.IsEmpty() {
		return nil
	}
	buf := make([]byte, headerLen+s.size*len(s.items))
	buf[0] = codecVersion
	binary.BigEndian.PutUint16(buf[1:3], uint16(s.size))
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(s.items)))
	off := headerLen
	for _, d := range s.items {
		copy(buf[off:], d.raw)
		off += s.size
	}
	return buf
}

// Decode parses a payload produced by Encode. A nil or empty payload yields an empty set.
func Decode(payload []byte) (Set, error) {
	if len(payload) == 0 {
		return Set{}, nil
	}
	if len(payload) < headerLen {
		return Set{}, fmt.Errorf("%w: payload too short (%d bytes)", ErrMalformed, len(payload))
	}
	if payload[0] != codecVersion {
		return Set{}, fmt.Errorf("%w: unknown codec version %d", ErrMalformed, payload[0])
	}
	size := int(binary.BigEndian.Uint16(payload[1:3]))
	count := int(binary.BigEndian.Uint32(payload[3:7]))
	body := payload[headerLen:]
	if size == 0 || size > MaxSize {
		return Set{}, fmt.Errorf("%w: descriptor size %d", ErrMalformed, size)
	}
	if len(body) != size*count {
		return Set{}, fmt.Errorf("%w: header declares %d x %d bytes, body has %d", ErrMalformed, count, size, len(body))
	}
	return Split(size, body)
}
