package types

import (
	ssz "github.com/ferranbt/fastssz"
)

// MaxShredData bounds one shred's data segment.
const MaxShredData = 1 << 16

// shredFixedSize is block_hash(32) + shred_index(2) + total_shreds(2) +
// data_len(4).
const shredFixedSize = 32 + 2 + 2 + 4

// ShredNote is one erasure-coded fragment of a block in flight. The
// consensus core only defines the wire form; reassembly happens in the
// transport layer.
type ShredNote struct {
	BlockHash   Hash
	ShredIndex  uint16
	TotalShreds uint16
	Data        []byte
}

// MarshalSSZ serializes the shred note into its canonical wire form.
func (s *ShredNote) MarshalSSZ() ([]byte, error) {
	return s.MarshalSSZTo(make([]byte, 0, s.SizeSSZ()))
}

// MarshalSSZTo appends the canonical serialization of s to buf.
func (s *ShredNote) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(s.Data) > MaxShredData {
		return nil, ssz.ErrBytesLength
	}
	dst := buf
	dst = append(dst, s.BlockHash[:]...)
	dst = ssz.MarshalUint16(dst, s.ShredIndex)
	dst = ssz.MarshalUint16(dst, s.TotalShreds)
	dst = ssz.MarshalUint32(dst, uint32(len(s.Data)))
	dst = append(dst, s.Data...)
	return dst, nil
}

// SizeSSZ returns the serialized size of the shred note.
func (s *ShredNote) SizeSSZ() int { return shredFixedSize + len(s.Data) }

// UnmarshalSSZ deserializes a shred note from its canonical wire form.
func (s *ShredNote) UnmarshalSSZ(buf []byte) error {
	if len(buf) < shredFixedSize {
		return ssz.ErrSize
	}
	copy(s.BlockHash[:], buf[0:32])
	s.ShredIndex = ssz.UnmarshallUint16(buf[32:34])
	s.TotalShreds = ssz.UnmarshallUint16(buf[34:36])
	dataLen := ssz.UnmarshallUint32(buf[36:40])
	if dataLen > MaxShredData {
		return ssz.ErrBytesLength
	}
	if len(buf) != shredFixedSize+int(dataLen) {
		return ssz.ErrSize
	}
	s.Data = append([]byte(nil), buf[40:40+dataLen]...)
	return nil
}
