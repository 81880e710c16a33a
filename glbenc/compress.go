package glbenc

import (
	"encoding/binary"
	"math"
)

// Package-local mesh-attribute compression: per-channel quantization to
// 16 bits followed by delta-from-previous zigzag varint coding, the same
// family of transform a mesh-optimization compression extension applies,
// laid out as a self-contained byte stream rather than any particular
// upstream codec's exact bit-packing.
//
// Stream layout per channel: float32 min, float32 scale, uvarint
// byteLength, then that many bytes of zigzag-varint-coded deltas.

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// encodeFloatAttr compresses an interleaved float64 buffer with the given
// stride (3 for positions/normals, 2 for UVs), one quantized delta stream
// per channel.
func encodeFloatAttr(values []float64, stride int) []byte {
	count := len(values) / stride
	out := make([]byte, 0, len(values)*2)
	var varintBuf [binary.MaxVarintLen64]byte

	for c := 0; c < stride; c++ {
		min, max := math.Inf(1), math.Inf(-1)
		for i := 0; i < count; i++ {
			v := values[i*stride+c]
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if count == 0 {
			min, max = 0, 0
		}
		rng := max - min
		scale := 0.0
		if rng > 0 {
			scale = 65535 / rng
		}

		quant := make([]int64, count)
		for i := 0; i < count; i++ {
			v := values[i*stride+c]
			quant[i] = int64(math.Round((v - min) * scale))
		}

		channel := make([]byte, 0, count*2)
		prev := int64(0)
		for i := 0; i < count; i++ {
			delta := quant[i] - prev
			prev = quant[i]
			n := binary.PutUvarint(varintBuf[:], zigzagEncode(delta))
			channel = append(channel, varintBuf[:n]...)
		}

		out = appendFloat32(out, float32(min))
		out = appendFloat32(out, float32(scale))
		n := binary.PutUvarint(varintBuf[:], uint64(len(channel)))
		out = append(out, varintBuf[:n]...)
		out = append(out, channel...)
	}
	return out
}

// decodeFloatAttr is encodeFloatAttr's inverse.
func decodeFloatAttr(data []byte, count, stride int) []float64 {
	out := make([]float64, count*stride)
	off := 0
	for c := 0; c < stride; c++ {
		min := readFloat32(data[off:])
		off += 4
		scale := readFloat32(data[off:])
		off += 4
		chanLen, n := binary.Uvarint(data[off:])
		off += n
		end := off + int(chanLen)
		prev := int64(0)
		for i := 0; i < count; i++ {
			zz, n := binary.Uvarint(data[off:end])
			off += n
			prev += zigzagDecode(zz)
			v := float64(prev)
			if scale != 0 {
				v = v/float64(scale) + float64(min)
			} else {
				v = float64(min)
			}
			out[i*stride+c] = v
		}
		off = end
	}
	return out
}

// encodeUint8Attr compresses an interleaved uint8 buffer (vertex colors)
// with delta-zigzag-varint coding per channel, no quantization needed.
func encodeUint8Attr(values []byte, stride int) []byte {
	count := len(values) / stride
	out := make([]byte, 0, len(values))
	var varintBuf [binary.MaxVarintLen64]byte
	for c := 0; c < stride; c++ {
		prev := int64(0)
		channel := make([]byte, 0, count*2)
		for i := 0; i < count; i++ {
			v := int64(values[i*stride+c])
			delta := v - prev
			prev = v
			n := binary.PutUvarint(varintBuf[:], zigzagEncode(delta))
			channel = append(channel, varintBuf[:n]...)
		}
		n := binary.PutUvarint(varintBuf[:], uint64(len(channel)))
		out = append(out, varintBuf[:n]...)
		out = append(out, channel...)
	}
	return out
}

func decodeUint8Attr(data []byte, count, stride int) []byte {
	out := make([]byte, count*stride)
	off := 0
	for c := 0; c < stride; c++ {
		chanLen, n := binary.Uvarint(data[off:])
		off += n
		end := off + int(chanLen)
		prev := int64(0)
		for i := 0; i < count; i++ {
			zz, n := binary.Uvarint(data[off:end])
			off += n
			prev += zigzagDecode(zz)
			out[i*stride+c] = byte(prev)
		}
		off = end
	}
	return out
}

// encodeIndices compresses a triangle index buffer with delta-from-
// previous zigzag varint coding.
func encodeIndices(values []uint32) []byte {
	out := make([]byte, 0, len(values)*2)
	var varintBuf [binary.MaxVarintLen64]byte
	prev := int64(0)
	for _, v := range values {
		delta := int64(v) - prev
		prev = int64(v)
		n := binary.PutUvarint(varintBuf[:], zigzagEncode(delta))
		out = append(out, varintBuf[:n]...)
	}
	return out
}

func decodeIndices(data []byte, count int) []uint32 {
	out := make([]uint32, count)
	off := 0
	prev := int64(0)
	for i := 0; i < count; i++ {
		zz, n := binary.Uvarint(data[off:])
		off += n
		prev += zigzagDecode(zz)
		out[i] = uint32(prev)
	}
	return out
}

func appendFloat32(out []byte, f float32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	return append(out, b[:]...)
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
