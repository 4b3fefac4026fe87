package termsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	assert.True(t, validName("Greeting"))
	assert.True(t, validName("a"))
	assert.False(t, validName(""))
	assert.False(t, validName("bad\x00name"))
}

func TestEncodeString(t *testing.T) {
	buf := encodeString("N", "hi")

	want := []byte{
		preamble, byte(SingleString),
		'N', 0,
		3, 0, 0, 0, // content length, little-endian: "hi" + NUL
		'h', 'i', 0,
	}
	assert.Equal(t, want, buf)
}

func TestEncodeInt32(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		buf := encodeInt32("I", 0x01020304)
		want := []byte{
			preamble, byte(SingleInt),
			'I', 0,
			4, 0, 0, 0,
			0x04, 0x03, 0x02, 0x01,
		}
		assert.Equal(t, want, buf)
	})

	t.Run("negative", func(t *testing.T) {
		buf := encodeInt32("I", -1)
		assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf[len(buf)-4:])
		assert.Equal(t, int32(-1), decodeInt32(buf[len(buf)-4:]))
	})
}

func TestEncodeBytes(t *testing.T) {
	t.Run("data", func(t *testing.T) {
		buf := encodeBytes("B", []byte{0xDE, 0xAD})
		want := []byte{
			preamble, byte(Bytes),
			'B', 0,
			2, 0, 0, 0,
			0xDE, 0xAD,
		}
		assert.Equal(t, want, buf)
	})

	t.Run("empty", func(t *testing.T) {
		buf := encodeBytes("B", nil)
		want := []byte{
			preamble, byte(Bytes),
			'B', 0,
			0, 0, 0, 0,
		}
		assert.Equal(t, want, buf)
	})
}

func TestEncodeStringList(t *testing.T) {
	t.Run("several items", func(t *testing.T) {
		buf := encodeStringList("L", []string{"", "a", "bb"})
		want := []byte{
			preamble, byte(ListOfStrings),
			'L', 0,
			6, 0, 0, 0,
			0, 'a', 0, 'b', 'b', 0,
		}
		assert.Equal(t, want, buf)
	})

	t.Run("single empty string is one NUL", func(t *testing.T) {
		buf := encodeStringList("L", []string{""})
		require.Equal(t, byte(1), buf[4]) // content length
		assert.Equal(t, byte(0), buf[len(buf)-1])
	})

	t.Run("empty list has zero-length content", func(t *testing.T) {
		buf := encodeStringList("L", nil)
		assert.Equal(t, []byte{preamble, byte(ListOfStrings), 'L', 0, 0, 0, 0, 0}, buf)
	})
}

func TestSplitStringList(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    []string
	}{
		{"empty content", nil, nil},
		{"single empty string", []byte{0}, []string{""}},
		{"mixed", []byte{0, 'a', 0, 'b', 'b', 0}, []string{"", "a", "bb"}},
		{"missing trailing NUL kept", []byte{'a', 0, 'b'}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStringList(tt.content))
		})
	}
}

func TestTrimNUL(t *testing.T) {
	assert.Equal(t, []byte("hi"), trimNUL([]byte("hi\x00")))
	assert.Equal(t, []byte("hi"), trimNUL([]byte("hi")))
	assert.Empty(t, trimNUL([]byte{0}))
	assert.Empty(t, trimNUL(nil))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Encode, then run the bytes through a receiver and compare what comes out.
	type pkg struct {
		typ     PackageType
		name    string
		str     string
		n       int32
		data    []byte
		items   []string
	}
	long := string(make([]byte, 100_000))
	inputs := []pkg{
		{typ: SingleString, name: "S", str: "Hello world"},
		{typ: SingleString, name: "Empty", str: ""},
		{typ: SingleInt, name: "I", n: -2333},
		{typ: Bytes, name: "B", data: []byte{1, 2, 3}},
		{typ: Bytes, name: "ZeroBytes", data: nil},
		{typ: ListOfStrings, name: "L", items: []string{"A", "B", "AA", "BBB"}},
		{typ: ListOfStrings, name: "OneEmpty", items: []string{""}},
		{typ: ListOfStrings, name: "LongItem", items: []string{long}},
	}

	var stream []byte
	for _, p := range inputs {
		switch p.typ {
		case SingleString:
			stream = append(stream, encodeString(p.name, p.str)...)
		case SingleInt:
			stream = append(stream, encodeInt32(p.name, p.n)...)
		case Bytes:
			stream = append(stream, encodeBytes(p.name, p.data)...)
		case ListOfStrings:
			stream = append(stream, encodeStringList(p.name, p.items)...)
		}
	}

	var got []pkg
	r := newTestReceiver(t, func(typ PackageType, name string, content []byte) {
		p := pkg{typ: typ, name: name}
		switch typ {
		case SingleString:
			p.str = string(trimNUL(content))
		case SingleInt:
			p.n = decodeInt32(content)
		case Bytes:
			if len(content) > 0 {
				p.data = append([]byte(nil), content...)
			}
		case ListOfStrings:
			p.items = splitStringList(content)
		}
		got = append(got, p)
	})

	require.NoError(t, r.feed(stream))
	assert.Equal(t, inputs, got)
}
