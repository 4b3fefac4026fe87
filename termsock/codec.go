package termsock

import (
	"encoding/binary"
	"strings"
)

// Wire format per package:
//
//	[1]   preamble (0xCE)
//	[1]   package type
//	[n+1] name, NUL-terminated
//	[4]   content length, little-endian uint32
//	[len] content
//
// Content by type: SingleString is the string bytes plus a trailing NUL
// (length includes the NUL); SingleInt is 4 bytes little-endian two's
// complement; Bytes is the raw data; ListOfStrings is a concatenation of
// NUL-terminated strings with the count implied by the content length.

// validName reports whether name is usable as a package label: non-empty and
// free of NUL bytes, which would corrupt the framing.
func validName(name string) bool {
	return name != "" && !strings.ContainsRune(name, 0)
}

// appendHeader appends the package header for a package of the given type,
// name, and content length, returning the extended buffer.
func appendHeader(buf []byte, typ PackageType, name string, contentLen int) []byte {
	buf = append(buf, preamble, byte(typ))
	buf = append(buf, name...)
	buf = append(buf, 0)
	return binary.LittleEndian.AppendUint32(buf, uint32(contentLen))
}

// newPackageBuffer allocates a buffer sized for one package and writes its
// header. The content is appended by the caller.
func newPackageBuffer(typ PackageType, name string, contentLen int) []byte {
	buf := make([]byte, 0, 1+1+len(name)+1+4+contentLen)
	return appendHeader(buf, typ, name, contentLen)
}

// encodeString encodes a SingleString package.
func encodeString(name, value string) []byte {
	buf := newPackageBuffer(SingleString, name, len(value)+1)
	buf = append(buf, value...)
	return append(buf, 0)
}

// encodeInt32 encodes a SingleInt package.
func encodeInt32(name string, value int32) []byte {
	buf := newPackageBuffer(SingleInt, name, 4)
	return binary.LittleEndian.AppendUint32(buf, uint32(value))
}

// encodeBytes encodes a Bytes package. data may be empty.
func encodeBytes(name string, data []byte) []byte {
	buf := newPackageBuffer(Bytes, name, len(data))
	return append(buf, data...)
}

// encodeStringList encodes a ListOfStrings package. An empty list encodes as
// zero-length content; a list holding one empty string encodes as a single
// NUL byte.
func encodeStringList(name string, items []string) []byte {
	contentLen := 0
	for _, s := range items {
		contentLen += len(s) + 1
	}

	buf := newPackageBuffer(ListOfStrings, name, contentLen)
	for _, s := range items {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	return buf
}

// decodeInt32 decodes a little-endian int32 from the first 4 bytes of b.
func decodeInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

// trimNUL drops a single trailing NUL terminator, if present.
func trimNUL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == 0 {
		return b[:n-1]
	}
	return b
}

// splitStringList splits ListOfStrings content into its elements. Each
// element runs up to the next NUL; a trailing element without a terminator is
// kept as-is. Zero-length content yields no elements.
func splitStringList(content []byte) []string {
	var items []string
	for start := 0; start < len(content); {
		end := start
		for end < len(content) && content[end] != 0 {
			end++
		}
		items = append(items, string(content[start:end]))
		start = end + 1
	}
	return items
}
