package imaging

import (
	"encoding/binary"
	"hash/crc32"

	"cardpress/internal/services"
)

const metersPerInch = 0.0254

// withJPEGDensity inserts a JFIF APP0 segment carrying the pixel density
// right after the SOI marker. The standard library encoder emits no APP0, so
// printers would otherwise fall back to a guessed resolution.
func withJPEGDensity(data []byte, dpi int) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, services.Wrap(services.ErrTransient, "normalize", "density", "jpeg stream missing SOI", nil)
	}
	if dpi < 1 {
		return data, nil
	}

	segment := []byte{
		0xFF, 0xE0, // APP0
		0x00, 0x10, // segment length 16
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02, // JFIF version 1.2
		0x01,       // density unit: dots per inch
		0x00, 0x00, // X density, filled below
		0x00, 0x00, // Y density, filled below
		0x00, 0x00, // no thumbnail
	}
	binary.BigEndian.PutUint16(segment[12:], uint16(dpi))
	binary.BigEndian.PutUint16(segment[14:], uint16(dpi))

	out := make([]byte, 0, len(data)+len(segment))
	out = append(out, data[:2]...)
	out = append(out, segment...)
	out = append(out, data[2:]...)
	return out, nil
}

// withPNGDensity inserts a pHYs chunk ahead of the first IDAT chunk so the
// encoded file carries its physical resolution.
func withPNGDensity(data []byte, dpi int) ([]byte, error) {
	const signatureLen = 8
	if len(data) < signatureLen {
		return nil, services.Wrap(services.ErrTransient, "normalize", "density", "png stream truncated", nil)
	}
	if dpi < 1 {
		return data, nil
	}

	pixelsPerMeter := uint32(float64(dpi)/metersPerInch + 0.5)

	payload := make([]byte, 9)
	binary.BigEndian.PutUint32(payload[0:], pixelsPerMeter)
	binary.BigEndian.PutUint32(payload[4:], pixelsPerMeter)
	payload[8] = 1 // unit: meter

	chunk := make([]byte, 0, 4+4+len(payload)+4)
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, 'p', 'H', 'Y', 's')
	chunk = append(chunk, payload...)
	crc := crc32.NewIEEE()
	crc.Write(chunk[4:])
	chunk = binary.BigEndian.AppendUint32(chunk, crc.Sum32())

	offset := findChunk(data, "IDAT")
	if offset < 0 {
		return nil, services.Wrap(services.ErrTransient, "normalize", "density", "png stream missing IDAT", nil)
	}

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:offset]...)
	out = append(out, chunk...)
	out = append(out, data[offset:]...)
	return out, nil
}

// findChunk returns the byte offset of the named chunk's length field, or -1.
func findChunk(data []byte, name string) int {
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		if string(data[pos+4:pos+8]) == name {
			return pos
		}
		pos += 8 + length + 4
	}
	return -1
}
