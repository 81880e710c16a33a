package atlas

import (
	"bytes"
	"encoding/binary"
	"image"
)

// ktx2Identifier is the fixed 12-byte KTX2 file signature.
var ktx2Identifier = [12]byte{0xAB, 0x4B, 0x54, 0x58, 0x20, 0x32, 0x30, 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

const vkFormatR8G8B8A8Unorm = 37

// encodeKTX2 writes a minimal single-level, uncompressed KTX2 container
// around img's RGBA8 pixels, written directly against the Khronos Data
// Format and KTX2 layout.
func encodeKTX2(img image.Image) ([]byte, error) {
	rgba := toRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()

	levelData := packRGBARows(rgba)
	dfd := buildBasicDFD()

	const headerSize = 12 + 4*13 + 8*2 // identifier + 13 uint32 fields + 2 uint64 index fields
	const levelIndexSize = 3 * 8       // one level: byteOffset, byteLength, uncompressedByteLength

	dfdOffset := align8(headerSize + levelIndexSize)
	kvdOffset := dfdOffset + len(dfd)
	levelOffset := align8(kvdOffset)

	buf := new(bytes.Buffer)
	buf.Write(ktx2Identifier[:])
	writeU32(buf, vkFormatR8G8B8A8Unorm)
	writeU32(buf, 1) // typeSize: 1 byte per channel component
	writeU32(buf, uint32(w))
	writeU32(buf, uint32(h))
	writeU32(buf, 0) // pixelDepth: 2D texture
	writeU32(buf, 0) // layerCount
	writeU32(buf, 1) // faceCount
	writeU32(buf, 1) // levelCount
	writeU32(buf, 0) // supercompressionScheme: none
	writeU32(buf, uint32(dfdOffset))
	writeU32(buf, uint32(len(dfd)))
	writeU32(buf, uint32(kvdOffset))
	writeU32(buf, 0) // kvdByteLength: no key/value metadata
	writeU64(buf, 0) // sgdByteOffset
	writeU64(buf, 0) // sgdByteLength

	writeU64(buf, uint64(levelOffset))
	writeU64(buf, uint64(len(levelData)))
	writeU64(buf, uint64(len(levelData)))

	padTo(buf, dfdOffset)
	buf.Write(dfd)
	padTo(buf, levelOffset)
	buf.Write(levelData)

	return buf.Bytes(), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// packRGBARows strips per-row stride padding, producing tightly packed
// R8G8B8A8 texel data for the level's payload.
func packRGBARows(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		out = append(out, img.Pix[off:off+w*4]...)
	}
	return out
}

// buildBasicDFD constructs a Khronos Data Format basic descriptor block
// for an unsigned-normalized, 4-channel RGBA8 texel format.
func buildBasicDFD() []byte {
	const (
		channelR     = 0
		channelG     = 1
		channelB     = 2
		channelAlpha = 15
	)
	body := new(bytes.Buffer)
	// vendorId (17 bits) | descriptorType (15 bits): Khronos, basic format.
	writeU32(body, 0)
	// versionNumber (16 bits) = 2 | descriptorBlockSize (16 bits), filled below.
	blockSizePos := body.Len()
	writeU32(body, 2)
	// colorModel, colorPrimaries, transferFunction, flags.
	body.WriteByte(1) // KHR_DF_MODEL_RGBSDA
	body.WriteByte(1) // KHR_DF_PRIMARIES_BT709
	body.WriteByte(1) // KHR_DF_TRANSFER_LINEAR
	body.WriteByte(0) // flags: not premultiplied, not sRGB
	// texelBlockDimension0-3: 1x1 texel block, encoded as (dimension-1).
	body.WriteByte(0)
	body.WriteByte(0)
	body.WriteByte(0)
	body.WriteByte(0)
	// bytesPlane0-7: single plane, 4 bytes per texel.
	body.WriteByte(4)
	for i := 0; i < 7; i++ {
		body.WriteByte(0)
	}

	writeSample := func(bitOffset uint16, channel byte) {
		// bitOffset(16) | bitLength(8, stored as length-1) | channelType(8)
		writeU16(body, bitOffset)
		body.WriteByte(7) // 8-bit channel, stored as 8-1
		body.WriteByte(channel)
		body.WriteByte(0) // samplePosition0
		body.WriteByte(0) // samplePosition1
		body.WriteByte(0) // samplePosition2
		body.WriteByte(0) // samplePosition3
		writeU32(body, 0)          // sampleLower
		writeU32(body, 0xFFFFFFFF) // sampleUpper
	}
	writeSample(0, channelR)
	writeSample(8, channelG)
	writeSample(16, channelB)
	writeSample(24, channelAlpha)

	raw := body.Bytes()
	blockSize := uint16(len(raw) - blockSizePos + 4) // +4 for the vendorId/descriptorType word
	binary.LittleEndian.PutUint16(raw[blockSizePos+2:blockSizePos+4], blockSize)

	dfd := new(bytes.Buffer)
	writeU32(dfd, uint32(4+len(raw))) // dfdTotalSize: includes this field itself
	dfd.Write(raw)
	return dfd.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func align8(n int) int {
	return (n + 7) &^ 7
}

func padTo(buf *bytes.Buffer, offset int) {
	for buf.Len() < offset {
		buf.WriteByte(0)
	}
}
