// Package artifact owns the on-disk naming of sampled frame images.
//
// A frame artifact's filename is the only record of which source video it came
// from and which frame it was, so encoding and parsing live side by side here
// and nowhere else. Names look like:
//
//	video003_frame0000120.jpg
//
// Fixed-width zero padding keeps lexical order equal to numeric order within a
// single video. Ordering across videos always goes through Parse and Sort.
package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Ext is the file extension of every frame artifact.
const Ext = ".jpg"

var (
	artifactRe = regexp.MustCompile(`^video(\d+)_frame(\d+)\.(?i:jpg)$`)
	stagingRe  = regexp.MustCompile(`^video(\d+)_seq(\d+)\.(?i:jpg)$`)
)

// Artifact is one sampled frame persisted on disk.
type Artifact struct {
	// VideoIndex is the position of the source video in its job's sorted video list.
	VideoIndex int
	// FrameNumber is the absolute frame number inside the source video.
	FrameNumber int
	// Path is where the artifact lives on disk.
	Path string
}

// Name returns the artifact filename for a frame of a video.
func Name(videoIndex, frameNumber int) string {
	return fmt.Sprintf("video%03d_frame%07d%s", videoIndex, frameNumber, Ext)
}

// Parse recovers an artifact from a filename or path. The second return value
// is false for any file that was not produced by Name; callers treat such files
// as foreign and ignore them.
func Parse(path string) (Artifact, bool) {
	m := artifactRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return Artifact{}, false
	}
	videoIndex, err := strconv.Atoi(m[1])
	if err != nil {
		return Artifact{}, false
	}
	frameNumber, err := strconv.Atoi(m[2])
	if err != nil {
		return Artifact{}, false
	}
	return Artifact{VideoIndex: videoIndex, FrameNumber: frameNumber, Path: path}, true
}

// StagingPattern returns the printf-style output pattern handed to ffmpeg for a
// video. ffmpeg numbers its outputs sequentially, so these files are renamed to
// canonical names once the sequence number is mapped back to a frame number.
func StagingPattern(videoIndex int) string {
	return fmt.Sprintf("video%03d_seq%%07d%s", videoIndex, Ext)
}

// ParseStaging recovers the video index and ffmpeg sequence number from a
// staging filename.
func ParseStaging(path string) (videoIndex, seq int, ok bool) {
	m := stagingRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, 0, false
	}
	videoIndex, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return videoIndex, seq, true
}

// Less reports whether a sorts before b: by video index, then frame number.
// Path breaks ties so the order is total even for duplicate encodings such as
// video1_frame5.jpg and video001_frame0000005.jpg.
func Less(a, b Artifact) bool {
	if a.VideoIndex != b.VideoIndex {
		return a.VideoIndex < b.VideoIndex
	}
	if a.FrameNumber != b.FrameNumber {
		return a.FrameNumber < b.FrameNumber
	}
	return strings.Compare(a.Path, b.Path) < 0
}

// Sort orders artifacts in place for assembly.
func Sort(artifacts []Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		return Less(artifacts[i], artifacts[j])
	})
}
