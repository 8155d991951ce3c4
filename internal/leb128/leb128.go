// Package leb128 encodes and decodes the variable-length integers used
// throughout the WebAssembly binary format: unsigned LEB128 for counts,
// indices and offsets, and signed LEB128 for constant literals.
package leb128

import (
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen33 = 5
	maxVarintLen64 = 10

	continuationBit = 0x80
	signBit         = 0x40
	payloadMask     = 0x7f
)

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if v != 0 {
			b |= continuationBit
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, maxVarintLen64)
	for {
		b := byte(v & payloadMask)
		v >>= 7
		signBitSet := b&signBit != 0
		done := (v == 0 && !signBitSet) || (v == -1 && signBitSet)
		if !done {
			b |= continuationBit
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

// DecodeUint32 reads an unsigned LEB128 value bounded to 32 bits from r,
// returning the value and the number of bytes consumed.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128 value bounded to 64 bits from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 reads a signed LEB128 value bounded to 32 bits from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt33AsInt64 reads a signed LEB128 value bounded to 33 bits, as used
// by block-type immediates that distinguish a type index from a result type.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

// DecodeInt64 reads a signed LEB128 value bounded to 64 bits from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

func decodeUnsigned(r io.ByteReader, width int) (uint64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result uint64
	var shift uint
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && n > 0 {
				return 0, 0, io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		n++
		if n > uint64(maxBytes) {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overlong (more than %d bytes for %d-bit value)", maxBytes, width)
		}

		payload := uint64(b & payloadMask)
		shiftOverflow := shift >= 64
		if !shiftOverflow {
			result |= payload << shift
		}

		if b&continuationBit == 0 {
			if n == uint64(maxBytes) {
				// the final byte may only carry the remaining bits of width.
				usedBits := width - 7*(maxBytes-1)
				if usedBits < 8 {
					allowed := byte(1<<uint(usedBits)) - 1
					if b&^allowed != 0 {
						return 0, 0, fmt.Errorf("invalid LEB128 encoding: final byte exceeds %d-bit width", width)
					}
				}
			}
			return result, n, nil
		}
		shift += 7
	}
}

func decodeSigned(r io.ByteReader, width int) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	var n uint64
	var b byte
	for {
		var err error
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF && n > 0 {
				return 0, 0, io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}
		n++
		if n > uint64(maxBytes) {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overlong (more than %d bytes for %d-bit value)", maxBytes, width)
		}

		payload := int64(b & payloadMask)
		if shift < 64 {
			result |= payload << shift
		}
		shift += 7

		if b&continuationBit == 0 {
			break
		}
	}

	if shift < 64 && b&signBit != 0 {
		result |= -1 << shift
	}

	if n == uint64(maxBytes) {
		usedBits := width - 7*(maxBytes-1)
		if usedBits < 8 {
			signExtended := byte(0)
			if b&signBit != 0 {
				signExtended = 0x7f
			}
			allowed := byte(1<<uint(usedBits)) - 1
			if b&^allowed != signExtended&^allowed {
				return 0, 0, fmt.Errorf("invalid LEB128 encoding: final byte exceeds %d-bit width", width)
			}
		}
	}

	return result, n, nil
}

// LoadUint32 decodes an unsigned LEB128 value from the front of buf without
// an io.Reader, returning the value and the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := loadUnsigned(buf, 32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned LEB128 value from the front of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return loadUnsigned(buf, 64)
}

// LoadInt32 decodes a signed LEB128 value from the front of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadSigned(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes a signed LEB128 value from the front of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return loadSigned(buf, 64)
}

func loadUnsigned(buf []byte, width int) (uint64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overlong (more than %d bytes for %d-bit value)", maxBytes, width)
		}
		b := buf[i]
		if shift < 64 {
			result |= uint64(b&payloadMask) << shift
		}
		if b&continuationBit == 0 {
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}

func loadSigned(buf []byte, width int) (int64, uint64, error) {
	maxBytes := (width + 6) / 7
	var result int64
	var shift uint
	for i := 0; i < len(buf); i++ {
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overlong (more than %d bytes for %d-bit value)", maxBytes, width)
		}
		b := buf[i]
		if shift < 64 {
			result |= int64(b&payloadMask) << shift
		}
		if b&continuationBit == 0 {
			if shift < 64 && b&signBit != 0 {
				result |= -1 << (shift + 7)
			}
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}
