package engine

import (
	"bytes"
	"encoding/binary"
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
	markerSOS    = 0xDA
	markerAPP1   = 0xE1
	markerAPP2   = 0xE2
)

var (
	exifHeader = []byte("Exif\x00\x00")
	iccHeader  = []byte("ICC_PROFILE\x00")
)

// Metadata holds the raw EXIF (APP1) and ICC profile (APP2) segments of a
// JPEG file, each including its marker and length bytes.
type Metadata struct {
	Segments [][]byte
}

// Empty reports whether no segments were captured.
func (m Metadata) Empty() bool {
	return len(m.Segments) == 0
}

// ExtractJPEGMetadata scans the header segments of a JPEG buffer and keeps
// the EXIF and ICC profile segments. Non-JPEG or truncated input yields an
// empty Metadata.
func ExtractJPEGMetadata(data []byte) Metadata {
	var m Metadata
	if len(data) < 4 || data[0] != markerPrefix || data[1] != markerSOI {
		return m
	}

	i := 2
	for i+4 <= len(data) {
		if data[i] != markerPrefix {
			break
		}
		marker := data[i+1]
		if marker == markerPrefix {
			// Fill byte.
			i++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			i += 2
			continue
		}

		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		end := i + 2 + length
		if length < 2 || end > len(data) {
			break
		}
		payload := data[i+4 : end]

		switch {
		case marker == markerAPP1 && bytes.HasPrefix(payload, exifHeader),
			marker == markerAPP2 && bytes.HasPrefix(payload, iccHeader):
			seg := make([]byte, end-i)
			copy(seg, data[i:end])
			m.Segments = append(m.Segments, seg)
		}
		i = end
	}
	return m
}

// Inject returns a copy of the JPEG buffer with the captured segments
// inserted directly after the start-of-image marker. Buffers that are not
// JPEG are returned unchanged.
func (m Metadata) Inject(jpegData []byte) []byte {
	if m.Empty() || len(jpegData) < 2 || jpegData[0] != markerPrefix || jpegData[1] != markerSOI {
		return jpegData
	}

	size := len(jpegData)
	for _, seg := range m.Segments {
		size += len(seg)
	}

	out := make([]byte, 0, size)
	out = append(out, jpegData[:2]...)
	for _, seg := range m.Segments {
		out = append(out, seg...)
	}
	return append(out, jpegData[2:]...)
}
