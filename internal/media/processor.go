// Package media wraps the ffmpeg command-line transcoder used to sample frames
// from videos and to concatenate frame images into an output video.
package media

import "context"

// FrameSampler pulls every Nth frame of a video into numbered image files.
type FrameSampler interface {
	// SampleFrames runs one transcoder invocation that keeps frames whose
	// index is a multiple of interval, writing them through outputPattern
	// (a printf-style pattern numbered from 0). A nil error means every
	// selected frame was written.
	SampleFrames(ctx context.Context, videoPath, outputPattern string, interval int) error
}

// Concatenator turns an ordered manifest of images into a video.
type Concatenator interface {
	// ConcatImages re-encodes the images listed in manifestPath (ffmpeg concat
	// demuxer format) into output at fps frames per second.
	ConcatImages(ctx context.Context, manifestPath, output string, fps int) error
}
