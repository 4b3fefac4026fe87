package termsock

import (
	"fmt"
	"testing"

	"github.com/metavision/termlink/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// received is one dispatched package with its content copied out of the
// receive buffer.
type received struct {
	typ     PackageType
	name    string
	content []byte
}

func newTestReceiver(t *testing.T, dispatch func(typ PackageType, name string, content []byte)) *receiver {
	t.Helper()
	return newReceiver(logger.Nop(), func(typ PackageType, name []byte, content []byte) {
		dispatch(typ, string(name), content)
	})
}

func collectingReceiver(t *testing.T) (*receiver, *[]received) {
	t.Helper()
	var got []received
	r := newTestReceiver(t, func(typ PackageType, name string, content []byte) {
		got = append(got, received{typ: typ, name: name, content: append([]byte(nil), content...)})
	})
	return r, &got
}

// sampleStream returns the concatenated encoding of a fixed set of packages
// covering every type and the tricky empty payloads.
func sampleStream() []byte {
	var stream []byte
	stream = append(stream, encodeString("Greeting", "hi")...)
	stream = append(stream, encodeInt32("Counter", 2333)...)
	stream = append(stream, encodeBytes("Blob", []byte{0x11, 0x22, 0x33})...)
	stream = append(stream, encodeBytes("Empty", nil)...)
	stream = append(stream, encodeStringList("L", []string{"", "a", "bb"})...)
	stream = append(stream, encodeStringList("OneEmpty", []string{""})...)
	return stream
}

func TestReceiverFragmentationInvariance(t *testing.T) {
	stream := sampleStream()

	ref, refGot := collectingReceiver(t)
	require.NoError(t, ref.feed(stream))
	require.Len(t, *refGot, 6)

	chunkings := []int{1, 2, 3, 5, 7, 16, 64, len(stream)}
	for _, size := range chunkings {
		t.Run(fmt.Sprintf("chunk_size_%d", size), func(t *testing.T) {
			r, got := collectingReceiver(t)
			for start := 0; start < len(stream); start += size {
				end := start + size
				if end > len(stream) {
					end = len(stream)
				}
				require.NoError(t, r.feed(stream[start:end]))
			}
			assert.Equal(t, *refGot, *got)
		})
	}
}

func TestReceiverPipelinedPackagesInOneChunk(t *testing.T) {
	r, got := collectingReceiver(t)

	var chunk []byte
	for i := 0; i < 10; i++ {
		chunk = append(chunk, encodeInt32("Seq", int32(i))...)
	}
	require.NoError(t, r.feed(chunk))

	require.Len(t, *got, 10)
	for i, p := range *got {
		assert.Equal(t, SingleInt, p.typ)
		assert.Equal(t, "Seq", p.name)
		assert.Equal(t, int32(i), decodeInt32(p.content))
	}
}

func TestReceiverChunkSpanningPackageBoundary(t *testing.T) {
	r, got := collectingReceiver(t)

	a := encodeString("A", "first")
	b := encodeString("B", "second")
	stream := append(append([]byte(nil), a...), b...)

	// Split in the middle of the second package's header.
	cut := len(a) + 3
	require.NoError(t, r.feed(stream[:cut]))
	require.Len(t, *got, 1)
	require.NoError(t, r.feed(stream[cut:]))

	require.Len(t, *got, 2)
	assert.Equal(t, "A", (*got)[0].name)
	assert.Equal(t, "B", (*got)[1].name)
}

func TestReceiverZeroLengthContent(t *testing.T) {
	t.Run("empty bytes package", func(t *testing.T) {
		r, got := collectingReceiver(t)
		require.NoError(t, r.feed(encodeBytes("Empty", nil)))
		require.Len(t, *got, 1)
		assert.Equal(t, Bytes, (*got)[0].typ)
		assert.Empty(t, (*got)[0].content)
	})

	t.Run("list with one empty string", func(t *testing.T) {
		r, got := collectingReceiver(t)
		require.NoError(t, r.feed(encodeStringList("L", []string{""})))
		require.Len(t, *got, 1)
		assert.Equal(t, []string{""}, splitStringList((*got)[0].content))
	})

	t.Run("package after zero-length content in same chunk", func(t *testing.T) {
		r, got := collectingReceiver(t)
		stream := append(encodeBytes("Empty", nil), encodeString("S", "x")...)
		require.NoError(t, r.feed(stream))
		require.Len(t, *got, 2)
		assert.Equal(t, "S", (*got)[1].name)
	})
}

func TestReceiverResynchronization(t *testing.T) {
	t.Run("garbage before preamble is skipped", func(t *testing.T) {
		r, got := collectingReceiver(t)
		stream := append([]byte{0x00, 0x01, 0x02}, encodeString("S", "hi")...)
		require.NoError(t, r.feed(stream))
		require.Len(t, *got, 1)
		assert.Equal(t, "S", (*got)[0].name)
	})

	t.Run("invalid type byte resyncs to next preamble", func(t *testing.T) {
		r, got := collectingReceiver(t)
		stream := append([]byte{preamble, 0x7F}, encodeString("S", "hi")...)
		require.NoError(t, r.feed(stream))
		require.Len(t, *got, 1)
		assert.Equal(t, "S", (*got)[0].name)
	})
}

func TestReceiverOversizedPackage(t *testing.T) {
	t.Run("content length above ceiling is a framing error", func(t *testing.T) {
		r, got := collectingReceiver(t)
		stream := []byte{preamble, byte(Bytes), 'B', 0, 0xFF, 0xFF, 0xFF, 0xFF}
		assert.Error(t, r.feed(stream))
		assert.Empty(t, *got)
	})

	t.Run("unterminated name above ceiling is a framing error", func(t *testing.T) {
		r, _ := collectingReceiver(t)
		require.NoError(t, r.feed([]byte{preamble, byte(SingleString)}))
		junk := make([]byte, 1024*1024)
		for i := range junk {
			junk[i] = 'x'
		}
		var err error
		for err == nil {
			err = r.feed(junk)
		}
		assert.Error(t, err)
	})
}

func TestReceiverStateResetBetweenPackages(t *testing.T) {
	r, got := collectingReceiver(t)

	// Feed the same package twice in separate calls; internal buffers must
	// not leak content from the first into the second.
	pkg := encodeStringList("L", []string{"only"})
	require.NoError(t, r.feed(pkg))
	require.NoError(t, r.feed(pkg))

	require.Len(t, *got, 2)
	assert.Equal(t, (*got)[0], (*got)[1])
}
