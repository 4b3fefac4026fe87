package camera

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// JPEG frame boundary markers.
const (
	jpegMarker = 0xFF
	jpegSOI    = 0xD8 // start of image
	jpegEOI    = 0xD9 // end of image
)

// MJPEG splits a raw MJPEG byte stream into individual JPEG frames by
// scanning for the SOI and EOI markers. It covers capture devices and
// pipelines that emit back-to-back JPEG images with no container framing.
type MJPEG struct {
	path string
	rc   io.ReadCloser
	br   *bufio.Reader
}

// NewMJPEG creates a grabber that reads the MJPEG stream from the file or
// device node at path. The source is opened on Open.
func NewMJPEG(path string) *MJPEG {
	return &MJPEG{path: path}
}

// NewMJPEGStream creates a grabber over an already open byte stream.
func NewMJPEGStream(rc io.ReadCloser) *MJPEG {
	return &MJPEG{rc: rc}
}

// Open prepares the stream for grabbing, opening the device node when the
// grabber was created from a path.
func (g *MJPEG) Open() error {
	if g.rc == nil {
		f, err := os.Open(g.path)
		if err != nil {
			return fmt.Errorf("open mjpeg source: %w", err)
		}
		g.rc = f
	}
	g.br = bufio.NewReader(g.rc)
	return nil
}

// Grab returns the next complete JPEG frame from the stream, discarding any
// bytes before its start marker. It returns io.EOF when the stream ends and
// io.ErrUnexpectedEOF when the stream ends inside a frame.
func (g *MJPEG) Grab() ([]byte, error) {
	if g.br == nil {
		return nil, fmt.Errorf("mjpeg source is not open")
	}

	// Scan for the SOI marker.
	prev := byte(0)
	for {
		b, err := g.br.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == jpegMarker && b == jpegSOI {
			break
		}
		prev = b
	}

	frame := []byte{jpegMarker, jpegSOI}
	prev = 0
	for {
		b, err := g.br.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == jpegMarker && b == jpegEOI {
			return frame, nil
		}
		prev = b
	}
}

// Close closes the underlying stream, unblocking a pending Grab with a read
// error. Only rc is cleared: a concurrent Grab may still be draining br.
func (g *MJPEG) Close() error {
	if g.rc == nil {
		return nil
	}
	err := g.rc.Close()
	g.rc = nil
	return err
}
