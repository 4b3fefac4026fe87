// Package imageset reads frames from directories of annotated images and
// publishes them into a double buffer, acting as a drop-in frame source for
// replaying recorded data. The root directory holds one subdirectory per
// image set; each image is a .jpg file with a matching .xml annotation file
// beside it. Loading is paced by the consumer: each FetchNext lets the
// acquisition goroutine publish one more frame.
package imageset

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register the JPEG decoder for dimension probing
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/metavision/termlink/framebuf"
	"github.com/metavision/termlink/framecache"
	"github.com/metavision/termlink/logger"
)

// DefaultCacheTTL is the per-image cache lifetime used when Config.CacheTTL
// is zero.
const DefaultCacheTTL = 10 * time.Minute

// Config configures an ImageSet reader.
type Config struct {
	// Root is the directory containing one subdirectory per image set.
	Root string

	// ImageWidth and ImageHeight are the expected frame dimensions. When
	// non-zero, images with other dimensions are logged at warn level (they
	// are still published).
	ImageWidth  int
	ImageHeight int

	// CacheTTL is the lifetime of cached images. 0 means DefaultCacheTTL.
	CacheTTL time.Duration

	// Logger receives the reader's log output. Defaults to the no-op logger.
	Logger logger.Logger
}

// Frame is one loaded image.
type Frame struct {
	// Name is the image file name within its set.
	Name string

	// Data is the raw encoded image bytes.
	Data []byte

	// Width and Height are the decoded dimensions, 0 when probing failed.
	Width  int
	Height int
}

// ImageSet lists, loads, and replays image sets. Loaded images go through a
// cache so replaying a set does not reread every file. Safe for concurrent
// use; the acquisition goroutine started by Open publishes into the buffer
// returned by Latest.
type ImageSet struct {
	cfg   Config
	log   logger.Logger
	cache framecache.Cache[Frame]
	buf   framebuf.Double

	mu      sync.Mutex
	sets    []string
	current string // current set name, "" when none selected
	images  []string
	running bool
	fetchCh chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// New creates an ImageSet reader with an in-memory image cache.
func New(cfg Config) *ImageSet {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	return NewWithCache(cfg, framecache.NewMemory[Frame](ttl, ttl))
}

// NewWithCache creates an ImageSet reader using the given image cache, e.g. a
// redis-backed one shared between processes.
func NewWithCache(cfg Config, imageCache framecache.Cache[Frame]) *ImageSet {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &ImageSet{
		cfg:   cfg,
		log:   log,
		cache: imageCache,
	}
}

// ReloadList re-enumerates the set subdirectories under the root and clears
// the current selection.
//
// Returns:
//   - The sorted set names, or an error if the root could not be read. A
//     missing root yields an empty list, not an error.
func (s *ImageSet) ReloadList() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets = nil
	s.current = ""
	s.images = nil

	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read image set root: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			s.sets = append(s.sets, entry.Name())
		}
	}
	sort.Strings(s.sets)
	return append([]string(nil), s.sets...), nil
}

// Sets returns the set names found by the last ReloadList.
func (s *ImageSet) Sets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets...)
}

// Switch selects an image set and loads its sorted image list. Images without
// a matching .xml annotation file are skipped with a warning. If the reader
// is open, it is closed first.
//
// Parameters:
//   - name: The set subdirectory name
//
// Returns:
//   - The number of images in the set, or an error if the directory could
//     not be read
func (s *ImageSet) Switch(name string) (int, error) {
	s.Close()

	dir := filepath.Join(s.cfg.Root, name)
	s.log.Info("loading image set", logger.Field{Key: "path", Value: dir})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read image set %s: %w", name, err)
	}

	var images []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, err := os.Stat(filepath.Join(dir, stem+".xml")); err != nil {
			s.log.Warn("missing annotation file, image skipped",
				logger.Field{Key: "image", Value: entry.Name()})
			continue
		}

		images = append(images, entry.Name())
	}
	sort.Strings(images)

	s.mu.Lock()
	s.current = name
	s.images = images
	s.mu.Unlock()

	s.log.Info("image set loaded",
		logger.Field{Key: "set", Value: name},
		logger.Field{Key: "images", Value: len(images)})
	return len(images), nil
}

// Images returns the image names of the currently selected set.
func (s *ImageSet) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.images...)
}

// Image loads a single image from the current set through the cache.
//
// Parameters:
//   - ctx: Context for cancellation
//   - name: The image file name within the current set
//
// Returns:
//   - The loaded frame, or an error if no set is selected or the file could
//     not be read
func (s *ImageSet) Image(ctx context.Context, name string) (Frame, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == "" {
		return Frame{}, fmt.Errorf("no image set selected")
	}

	key := current + "/" + name
	return s.cache.GetOrFetch(ctx, key, s.cfg.CacheTTL, func(ctx context.Context) (Frame, error) {
		return s.loadImage(filepath.Join(s.cfg.Root, current, name), name)
	})
}

// loadImage reads an image file and probes its dimensions.
func (s *ImageSet) loadImage(path, name string) (Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read image %s: %w", name, err)
	}

	f := Frame{Name: name, Data: data}
	if probe, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		s.log.Warn("cannot probe image dimensions",
			logger.Field{Key: "image", Value: name},
			logger.Field{Key: "error", Value: err.Error()})
	} else {
		f.Width, f.Height = probe.Width, probe.Height
		if (s.cfg.ImageWidth != 0 && f.Width != s.cfg.ImageWidth) ||
			(s.cfg.ImageHeight != 0 && f.Height != s.cfg.ImageHeight) {
			s.log.Warn("image dimensions differ from configured size",
				logger.Field{Key: "image", Value: name},
				logger.Field{Key: "width", Value: f.Width},
				logger.Field{Key: "height", Value: f.Height})
		}
	}
	return f, nil
}

// Open starts the acquisition goroutine, which steps through the selected
// set's images and publishes one frame per FetchNext call. The first frame is
// fetched immediately. If the reader is already open it is closed first.
//
// Returns:
//   - An error if no image set is selected
func (s *ImageSet) Open() error {
	s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return fmt.Errorf("no image set selected")
	}

	images := append([]string(nil), s.images...)
	s.fetchCh = make(chan struct{}, 1)
	s.fetchCh <- struct{}{} // load the first frame without waiting
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.acquireLoop(images, s.fetchCh, s.quit, s.done)
	return nil
}

// acquireLoop publishes frames into the double buffer, one per fetch token,
// until the set is exhausted or Close is called. The end-of-stream sentinel
// is always published on the way out.
func (s *ImageSet) acquireLoop(images []string, fetchCh <-chan struct{}, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.buf.PublishEnd()

	for _, name := range images {
		select {
		case <-quit:
			return
		case <-fetchCh:
		}

		f, err := s.Image(context.Background(), name)
		if err != nil {
			s.log.Error("failed to load image",
				logger.Field{Key: "image", Value: name},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		s.buf.Publish(f.Data, f.Width, f.Height)
	}

	s.log.Info("image set exhausted")
}

// FetchNext requests the next frame from the acquisition goroutine. At most
// one request is buffered; extra calls while one is pending are dropped.
func (s *ImageSet) FetchNext() {
	s.mu.Lock()
	fetchCh := s.fetchCh
	running := s.running
	s.mu.Unlock()

	if !running {
		return
	}
	select {
	case fetchCh <- struct{}{}:
	default:
	}
}

// IsOpen reports whether the acquisition goroutine is running.
func (s *ImageSet) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the acquisition goroutine and waits for it to exit. Safe to
// call when not open.
func (s *ImageSet) Close() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	quit, done := s.quit, s.done
	s.running = false
	s.mu.Unlock()

	close(quit)
	<-done
	s.log.Info("image set reader closed")
}

// Latest returns the most recently published frame, if any.
func (s *ImageSet) Latest() (framebuf.Frame, bool) {
	return s.buf.Latest()
}
