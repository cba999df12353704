// Package vision defines the contract the pipeline needs from a computer
// vision library: open a video, query its properties, seek, decode frames,
// encode a frame to an image file, and append frames to an output video.
//
// The production implementation lives in package cv (OpenCV through gocv).
package vision

import "errors"

// Static errors for vision operations.
var (
	// ErrOpen is returned when a video cannot be opened for decoding.
	ErrOpen = errors.New("vision: failed to open video")
	// ErrNoFrame is returned by Capture.Read when no frame could be decoded.
	// With an unknown frame count this marks the end of the stream.
	ErrNoFrame = errors.New("vision: no frame decoded")
	// ErrSeek is returned when the capture cannot be positioned on a frame.
	ErrSeek = errors.New("vision: seek failed")
	// ErrEncode is returned when a frame cannot be written as an image.
	ErrEncode = errors.New("vision: failed to encode image")
	// ErrWriterOpen is returned when an output video writer cannot be created.
	ErrWriterOpen = errors.New("vision: failed to open video writer")
	// ErrForeignFrame is returned when a Frame from another implementation is passed in.
	ErrForeignFrame = errors.New("vision: frame does not belong to this library")
)

// Props describes an opened video.
type Props struct {
	// FrameCount is the total number of frames reported by the container.
	// Zero means the count is unknown.
	FrameCount int
	// FPS is the nominal frame rate.
	FPS float64
	// Width is the frame width in pixels.
	Width int
	// Height is the frame height in pixels.
	Height int
}

// Frame is one decoded image held in memory. Callers must Close it.
type Frame interface {
	// Empty reports whether the frame holds no pixel data.
	Empty() bool
	// Size returns the frame dimensions.
	Size() (width, height int)
	// Close releases the frame's memory.
	Close() error
}

// Capture is an opened video being decoded.
type Capture interface {
	// Props returns the video's properties as known at open time.
	Props() Props
	// Seek positions the capture so the next Read returns the given absolute frame.
	Seek(frame int) error
	// Read decodes the next frame. It returns ErrNoFrame when nothing was decoded.
	Read() (Frame, error)
	// Close releases the underlying decoder.
	Close() error
}

// Writer appends frames of a fixed size to an output video.
type Writer interface {
	// Write appends one frame. The frame must match the writer's size.
	Write(f Frame) error
	// Close finalizes the output file.
	Close() error
}

// Library is the entry point to a vision implementation.
type Library interface {
	// Open starts decoding the video at path.
	Open(path string) (Capture, error)
	// WriteImage encodes f to an image file at path; the format follows the extension.
	WriteImage(path string, f Frame) error
	// NewWriter creates an output video of the given frame size and rate.
	NewWriter(path string, fps float64, width, height int) (Writer, error)
}
