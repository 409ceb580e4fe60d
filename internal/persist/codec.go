package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Vector region layout (little endian, zstd-compressed as a whole):
//
//	magic "KZV1" | version u16 | type len u8 | type | dim u32 | count u32 | float32 data | crc32
//
// The CRC covers every byte before it.
const (
	vectorMagic    = "KZV1"
	vectorVersion  = uint16(1)
	bindingVersion = 2
)

var crcTable = crc32.MakeTable(crc32.IEEE)

// EncodeVectors serializes the vector region.
func EncodeVectors(storeType string, dim int, vecs [][]float32) ([]byte, error) {
	if len(storeType) > math.MaxUint8 {
		return nil, fmt.Errorf("store type too long: %q", storeType)
	}
	var buf bytes.Buffer
	buf.Grow(4 + 2 + 1 + len(storeType) + 8 + len(vecs)*dim*4 + 4)
	buf.WriteString(vectorMagic)
	_ = binary.Write(&buf, binary.LittleEndian, vectorVersion)
	buf.WriteByte(byte(len(storeType)))
	buf.WriteString(storeType)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dim))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(vecs)))

	scratch := make([]byte, 4)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(x))
			buf.Write(scratch)
		}
	}
	_ = binary.Write(&buf, binary.LittleEndian, crc32.Checksum(buf.Bytes(), crcTable))

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeVectors parses and validates a vector region.
func DecodeVectors(data []byte) (storeType string, dim int, vecs [][]float32, err error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return "", 0, nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: decompress vectors: %v", ErrCorruptState, err)
	}

	const fixed = 4 + 2 + 1
	if len(raw) < fixed {
		return "", 0, nil, fmt.Errorf("%w: vector region truncated", ErrCorruptState)
	}
	if string(raw[:4]) != vectorMagic {
		return "", 0, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptState, raw[:4])
	}
	if v := binary.LittleEndian.Uint16(raw[4:6]); v != vectorVersion {
		return "", 0, nil, fmt.Errorf("%w: unsupported vector format version %d", ErrCorruptState, v)
	}
	typeLen := int(raw[6])
	off := fixed + typeLen
	if len(raw) < off+8+4 {
		return "", 0, nil, fmt.Errorf("%w: vector region truncated", ErrCorruptState)
	}
	storeType = string(raw[fixed:off])
	dim = int(binary.LittleEndian.Uint32(raw[off:]))
	count := int(binary.LittleEndian.Uint32(raw[off+4:]))
	off += 8

	if dim <= 0 {
		return "", 0, nil, fmt.Errorf("%w: dimension %d", ErrCorruptState, dim)
	}
	if count > len(raw)/(dim*4) {
		return "", 0, nil, fmt.Errorf("%w: vector region truncated (%d vectors declared)", ErrCorruptState, count)
	}
	want := off + count*dim*4 + 4
	switch {
	case len(raw) < want:
		return "", 0, nil, fmt.Errorf("%w: vector region truncated (%d of %d bytes)", ErrCorruptState, len(raw), want)
	case len(raw) > want:
		return "", 0, nil, fmt.Errorf("%w: %d trailing bytes after vector region", ErrCorruptState, len(raw)-want)
	}
	body := raw[:want-4]
	if got, sum := crc32.Checksum(body, crcTable), binary.LittleEndian.Uint32(raw[want-4:]); got != sum {
		return "", 0, nil, fmt.Errorf("%w: checksum mismatch (got %08x, stored %08x)", ErrCorruptState, got, sum)
	}

	vecs = make([][]float32, count)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
		vecs[i] = v
	}
	return storeType, dim, vecs, nil
}

// IdentityRegion is the decoded identity region. VectorsCRC is the checksum
// of the stored vector region it was saved with, so a pair of regions from
// different saves is rejected even when every position is in range.
type IdentityRegion struct {
	Version    int               `msgpack:"version"`
	VectorsCRC uint32            `msgpack:"vectors_crc"`
	Embedder   string            `msgpack:"embedder,omitempty"`
	Bindings   map[string]uint32 `msgpack:"bindings"`
}

// VectorsChecksum returns the checksum recorded for an encoded vector region.
func VectorsChecksum(vectors []byte) uint32 {
	return crc32.Checksum(vectors, crcTable)
}

// EncodeBindings serializes the identity region.
func EncodeBindings(r *IdentityRegion) ([]byte, error) {
	doc := *r
	doc.Version = bindingVersion
	if doc.Bindings == nil {
		doc.Bindings = map[string]uint32{}
	}
	data, err := msgpack.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode bindings: %w", err)
	}
	return data, nil
}

// DecodeBindings parses an identity region.
func DecodeBindings(data []byte) (*IdentityRegion, error) {
	var doc IdentityRegion
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode bindings: %v", ErrCorruptState, err)
	}
	if doc.Version != bindingVersion {
		return nil, fmt.Errorf("%w: unsupported identity format version %d", ErrCorruptState, doc.Version)
	}
	if doc.Bindings == nil {
		doc.Bindings = map[string]uint32{}
	}
	return &doc, nil
}
