// Package cv implements the vision contract on top of OpenCV via gocv.
package cv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/maauso/framesampler/internal/vision"
)

// DefaultCodec is the FourCC used for direct-stream output videos.
const DefaultCodec = "avc1"

// Compile-time check that Library implements vision.Library.
var _ vision.Library = (*Library)(nil)

// Library is the gocv-backed vision.Library.
type Library struct {
	codec string
}

// New creates a Library. If codec is empty, DefaultCodec is used.
func New(codec string) *Library {
	if codec == "" {
		codec = DefaultCodec
	}
	return &Library{codec: codec}
}

// Open starts decoding the video at path.
func (l *Library) Open(path string) (vision.Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vision.ErrOpen, path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s", vision.ErrOpen, path)
	}
	return &capture{vc: vc}, nil
}

// WriteImage encodes f to path.
func (l *Library) WriteImage(path string, f vision.Frame) error {
	fr, ok := f.(*frame)
	if !ok {
		return vision.ErrForeignFrame
	}
	if !gocv.IMWrite(path, fr.mat) {
		return fmt.Errorf("%w: %s", vision.ErrEncode, path)
	}
	return nil
}

// NewWriter creates an output video using the library's codec.
func (l *Library) NewWriter(path string, fps float64, width, height int) (vision.Writer, error) {
	vw, err := gocv.VideoWriterFile(path, l.codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", vision.ErrWriterOpen, path, err)
	}
	if !vw.IsOpened() {
		_ = vw.Close()
		return nil, fmt.Errorf("%w: %s", vision.ErrWriterOpen, path)
	}
	return &writer{vw: vw}, nil
}

type capture struct {
	vc *gocv.VideoCapture
}

func (c *capture) Props() vision.Props {
	count := int(c.vc.Get(gocv.VideoCaptureFrameCount))
	if count < 0 {
		count = 0
	}
	return vision.Props{
		FrameCount: count,
		FPS:        c.vc.Get(gocv.VideoCaptureFPS),
		Width:      int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// Seek sets the capture position. OpenCV does not report failure from Set, so
// only positions that can never be valid are rejected here; a bad position
// shows up as ErrNoFrame on the following Read.
func (c *capture) Seek(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: frame %d", vision.ErrSeek, n)
	}
	c.vc.Set(gocv.VideoCapturePosFrames, float64(n))
	return nil
}

func (c *capture) Read() (vision.Frame, error) {
	mat := gocv.NewMat()
	if !c.vc.Read(&mat) {
		_ = mat.Close()
		return nil, vision.ErrNoFrame
	}
	return &frame{mat: mat}, nil
}

func (c *capture) Close() error {
	return c.vc.Close()
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Empty() bool {
	return f.mat.Empty()
}

func (f *frame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

func (f *frame) Close() error {
	return f.mat.Close()
}

type writer struct {
	vw *gocv.VideoWriter
}

func (w *writer) Write(f vision.Frame) error {
	fr, ok := f.(*frame)
	if !ok {
		return vision.ErrForeignFrame
	}
	return w.vw.Write(fr.mat)
}

func (w *writer) Close() error {
	return w.vw.Close()
}
