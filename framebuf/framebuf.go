// Package framebuf provides a two-slot latest-frame buffer shared between a
// single frame producer and any number of pollers. The producer always writes
// into the slot not being exposed, then flips, so a poller never observes a
// half-written frame and always gets the most recent complete one.
package framebuf

import "sync"

// MaxFrameID is the exclusive upper bound for frame IDs; the counter wraps to
// 0 when it is reached. IDs therefore stay well inside int32 range so they
// can travel as SingleInt packages.
const MaxFrameID = 1 << 30

// InvalidFrameID marks the end-of-stream sentinel published when a producer
// stops.
const InvalidFrameID = -1

// Frame is one published frame. Data is owned by the buffer once published;
// producers must hand over a slice they will not touch again.
type Frame struct {
	// ID is the sequence number of the frame, wrapping at MaxFrameID.
	// InvalidFrameID marks the end of the stream.
	ID int32

	// Data is the encoded frame content.
	Data []byte

	// Width and Height are the frame dimensions in pixels, 0 when unknown.
	Width  int
	Height int
}

// Double is the two-slot buffer. The zero value is ready to use; the first
// published frame gets ID 0. Safe for one concurrent producer and many
// pollers.
type Double struct {
	mu    sync.RWMutex
	slots [2]Frame
	last  int  // index of the slot holding the latest frame
	valid bool // false until the first Publish
}

// Publish stores a new frame in the working slot, assigns it the next frame
// ID, and makes it the latest.
//
// Returns:
//   - The ID assigned to the frame
func (d *Double) Publish(data []byte, width, height int) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := int32(0)
	if d.valid {
		id = d.slots[d.last].ID + 1
		if id >= MaxFrameID || id < 0 {
			id = 0
		}
	}

	working := 1 - d.last
	d.slots[working] = Frame{ID: id, Data: data, Width: width, Height: height}
	d.last = working
	d.valid = true
	return id
}

// PublishEnd publishes the end-of-stream sentinel (ID InvalidFrameID, no
// data). Pollers seeing it know the producer has stopped.
func (d *Double) PublishEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()

	working := 1 - d.last
	d.slots[working] = Frame{ID: InvalidFrameID}
	d.last = working
	d.valid = true
}

// Latest returns the most recently published frame. The second result is
// false if nothing has been published yet.
func (d *Double) Latest() (Frame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.valid {
		return Frame{}, false
	}
	return d.slots[d.last], true
}

// LatestID returns the ID of the most recently published frame, or
// InvalidFrameID if nothing has been published.
func (d *Double) LatestID() int32 {
	f, ok := d.Latest()
	if !ok {
		return InvalidFrameID
	}
	return f.ID
}
