// Package visiontest provides an in-memory vision.Library for tests.
//
// Videos are registered by path with a description of how they behave. Images
// and output videos are written to the real filesystem as small text files so
// downstream code that lists directories keeps working.
package visiontest

import (
	"fmt"
	"os"
	"sync"

	"github.com/maauso/framesampler/internal/vision"
)

// Compile-time check that Library implements vision.Library.
var _ vision.Library = (*Library)(nil)

// Video describes a fake video.
type Video struct {
	// FrameCount is what Props reports. Zero means unknown.
	FrameCount int
	// Decodable is how many frames can actually be read. Defaults to FrameCount.
	Decodable int
	// Width and Height are the frame dimensions.
	Width, Height int
	// FailReads makes every Read return vision.ErrNoFrame.
	FailReads bool
	// FailSeeks makes every Seek return vision.ErrSeek.
	FailSeeks bool
	// Empty lists frame numbers that decode to an empty frame.
	Empty map[int]bool
	// FailEncode makes WriteImage fail for frames of this video.
	FailEncode bool
}

// Frame is a decoded fake frame.
type Frame struct {
	Source string
	Index  int
	W, H   int
	Blank  bool
}

// Empty implements vision.Frame.
func (f *Frame) Empty() bool { return f.Blank }

// Size implements vision.Frame.
func (f *Frame) Size() (int, int) { return f.W, f.H }

// Close implements vision.Frame.
func (f *Frame) Close() error { return nil }

// Library is a fake vision.Library. It is safe for concurrent use.
type Library struct {
	mu      sync.Mutex
	videos  map[string]Video
	opened  []string
	writers map[string]*Writer
}

// NewLibrary creates an empty fake library.
func NewLibrary() *Library {
	return &Library{
		videos:  make(map[string]Video),
		writers: make(map[string]*Writer),
	}
}

// Add registers a fake video at path.
func (l *Library) Add(path string, v Video) {
	if v.Decodable == 0 {
		v.Decodable = v.FrameCount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.videos[path] = v
}

// Opened returns the paths passed to Open, in call order.
func (l *Library) Opened() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.opened...)
}

// Writer returns the writer created for path, if any.
func (l *Library) Writer(path string) *Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writers[path]
}

// Open implements vision.Library.
func (l *Library) Open(path string) (vision.Capture, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, path)
	v, ok := l.videos[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vision.ErrOpen, path)
	}
	return &capture{path: path, video: v}, nil
}

// WriteImage implements vision.Library.
func (l *Library) WriteImage(path string, f vision.Frame) error {
	fr, ok := f.(*Frame)
	if !ok {
		return vision.ErrForeignFrame
	}
	l.mu.Lock()
	v := l.videos[fr.Source]
	l.mu.Unlock()
	if v.FailEncode {
		return fmt.Errorf("%w: %s", vision.ErrEncode, path)
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%s#%d\n", fr.Source, fr.Index)), 0o600)
}

// NewWriter implements vision.Library.
func (l *Library) NewWriter(path string, fps float64, width, height int) (vision.Writer, error) {
	f, err := os.Create(path) // #nosec G304 - test helper
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vision.ErrWriterOpen, err)
	}
	w := &Writer{file: f, FPS: fps, Width: width, Height: height}
	l.mu.Lock()
	l.writers[path] = w
	l.mu.Unlock()
	return w, nil
}

type capture struct {
	path  string
	video Video
	pos   int
}

func (c *capture) Props() vision.Props {
	return vision.Props{
		FrameCount: c.video.FrameCount,
		FPS:        30,
		Width:      c.video.Width,
		Height:     c.video.Height,
	}
}

func (c *capture) Seek(n int) error {
	if c.video.FailSeeks || n < 0 {
		return fmt.Errorf("%w: frame %d", vision.ErrSeek, n)
	}
	c.pos = n
	return nil
}

func (c *capture) Read() (vision.Frame, error) {
	if c.video.FailReads || c.pos >= c.video.Decodable {
		return nil, vision.ErrNoFrame
	}
	f := &Frame{
		Source: c.path,
		Index:  c.pos,
		W:      c.video.Width,
		H:      c.video.Height,
		Blank:  c.video.Empty[c.pos],
	}
	c.pos++
	return f, nil
}

func (c *capture) Close() error { return nil }

// Writer records frames appended to a fake output video.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	frames []string
	closed bool

	FPS           float64
	Width, Height int
}

// Write implements vision.Writer.
func (w *Writer) Write(f vision.Frame) error {
	fr, ok := f.(*Frame)
	if !ok {
		return vision.ErrForeignFrame
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ref := fmt.Sprintf("%s#%d", fr.Source, fr.Index)
	w.frames = append(w.frames, ref)
	_, err := fmt.Fprintln(w.file, ref)
	return err
}

// Close implements vision.Writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.file.Close()
}

// Frames returns "<source>#<frame>" references in write order.
func (w *Writer) Frames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.frames...)
}

// Closed reports whether Close was called.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
