// Package camera wraps a frame grabber in an acquisition goroutine that
// publishes every captured frame into a double buffer. It is a live frame
// source with the same polling surface as the imageset reader: open it, poll
// Latest for the newest frame, close it. The default grabber splits an MJPEG
// byte stream from a capture device node.
package camera

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register the JPEG decoder for dimension probing
	"sync"
	"sync/atomic"
	"time"

	"github.com/metavision/termlink/framebuf"
	"github.com/metavision/termlink/logger"
)

// Grabber produces encoded frames from a capture source. Grab blocks until
// the next frame is available and returns an error when the source is
// exhausted or closed; Close must unblock a pending Grab.
type Grabber interface {
	// Open prepares the source for grabbing.
	Open() error

	// Grab returns the next encoded frame.
	Grab() ([]byte, error)

	// Close releases the source and unblocks a pending Grab.
	Close() error
}

// Config configures a Camera.
type Config struct {
	// Width and Height are the expected frame dimensions. When non-zero and
	// the first frame's dimensions can be probed, a mismatch fails Open.
	Width  int
	Height int

	// FPS is the configured capture rate, recorded in Info only; pacing is
	// up to the grabber.
	FPS int

	// Logger receives the camera's log output. Defaults to the no-op logger.
	Logger logger.Logger
}

// Camera runs a Grabber in a background goroutine and publishes frames into
// a double buffer. Safe for concurrent use.
type Camera struct {
	cfg     Config
	log     logger.Logger
	grabber Grabber
	buf     framebuf.Double

	frames atomic.Uint64 // cumulative frames captured since Open

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
	info    string

	rateMu    sync.Mutex
	lastCount uint64
	lastTime  time.Time
}

// New creates a camera around the given grabber.
func New(grabber Grabber, cfg Config) *Camera {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Camera{
		cfg:     cfg,
		log:     log,
		grabber: grabber,
	}
}

// Open starts capturing: it opens the grabber, grabs a first frame to verify
// the source works and to probe its dimensions, then starts the acquisition
// goroutine. An already open camera is closed first.
//
// Returns:
//   - An error if the grabber fails to open, delivers no first frame, or the
//     first frame's dimensions contradict the configured size
func (c *Camera) Open() error {
	c.Close()

	if err := c.grabber.Open(); err != nil {
		return fmt.Errorf("open capture source: %w", err)
	}

	first, err := c.grabber.Grab()
	if err != nil {
		_ = c.grabber.Close()
		return fmt.Errorf("fetch test frame: %w", err)
	}

	width, height := 0, 0
	if probe, _, err := image.DecodeConfig(bytes.NewReader(first)); err != nil {
		c.log.Warn("cannot probe frame dimensions", logger.Field{Key: "error", Value: err.Error()})
	} else {
		width, height = probe.Width, probe.Height
		if (c.cfg.Width != 0 && width != c.cfg.Width) || (c.cfg.Height != 0 && height != c.cfg.Height) {
			_ = c.grabber.Close()
			return fmt.Errorf("frame size %dx%d does not match configured %dx%d",
				width, height, c.cfg.Width, c.cfg.Height)
		}
	}

	c.mu.Lock()
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	c.info = fmt.Sprintf("%dx%d @ %d fps", width, height, c.cfg.FPS)
	c.mu.Unlock()

	c.frames.Store(0)
	c.rateMu.Lock()
	c.lastCount = 0
	c.lastTime = time.Now()
	c.rateMu.Unlock()

	c.buf.Publish(first, width, height)
	c.frames.Add(1)
	c.log.Info("camera opened", logger.Field{Key: "capture", Value: c.info})

	go c.captureLoop(c.quit, c.done, width, height)
	return nil
}

// captureLoop grabs frames until the grabber fails (closed or exhausted) or
// Close is called, publishing each into the double buffer. The end-of-stream
// sentinel is always published on the way out.
func (c *Camera) captureLoop(quit <-chan struct{}, done chan<- struct{}, width, height int) {
	defer close(done)
	defer c.buf.PublishEnd()

	for {
		select {
		case <-quit:
			return
		default:
		}

		data, err := c.grabber.Grab()
		if err != nil {
			select {
			case <-quit:
				// Close unblocked the grab; not a capture failure.
			default:
				c.log.Info("capture ended", logger.Field{Key: "reason", Value: err.Error()})
			}
			return
		}

		c.buf.Publish(data, width, height)
		c.frames.Add(1)
	}
}

// Close stops the acquisition goroutine, closing the grabber to unblock it,
// and waits for it to exit. Safe to call when not open.
func (c *Camera) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	quit, done := c.quit, c.done
	c.running = false
	c.mu.Unlock()

	close(quit)
	_ = c.grabber.Close()
	<-done
	c.log.Info("camera closed")
}

// IsOpen reports whether the acquisition goroutine is running.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Latest returns the most recently captured frame, if any.
func (c *Camera) Latest() (framebuf.Frame, bool) {
	return c.buf.Latest()
}

// Info returns a human-readable description of the capture parameters
// established by the last Open.
func (c *Camera) Info() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// FrameCount returns the cumulative number of frames captured since Open.
func (c *Camera) FrameCount() uint64 {
	return c.frames.Load()
}

// FrameRate returns the average frames per second since the previous
// FrameRate call (or since Open for the first call). Sampling it on a timer
// yields a windowed live rate.
func (c *Camera) FrameRate() float64 {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	now := time.Now()
	count := c.frames.Load()

	elapsed := now.Sub(c.lastTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	rate := float64(count-c.lastCount) / elapsed
	c.lastCount = count
	c.lastTime = now
	return rate
}
