// Package scan discovers candidate videos from configured input locations and
// groups them by containing directory.
package scan

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// videoExtensions is the allow-list of container formats picked up by Scan.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// IsVideo reports whether path has an allow-listed container extension.
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scanner walks input locations one level deep.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner. A nil logger falls back to slog.Default().
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// Scan maps each directory to the videos found for it.
//
// A file input is grouped under its cleaned parent directory. A directory input
// contributes its immediate child files with a video extension; subdirectories
// are not entered. Missing or unreadable locations are logged and skipped.
//
// Video lists come back in filesystem order. Callers that need determinism
// must sort them.
func (s *Scanner) Scan(inputs []string) map[string][]string {
	groups := make(map[string][]string)

	for _, input := range inputs {
		path := filepath.Clean(input)

		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn("input path does not exist or is inaccessible",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		if !info.IsDir() {
			if !IsVideo(path) {
				s.logger.Warn("input file is not a supported video format",
					slog.String("path", path),
				)
				continue
			}
			dir := filepath.Dir(path)
			groups[dir] = append(groups[dir], path)
			continue
		}

		videos, err := s.listVideos(path)
		if err != nil {
			s.logger.Warn("failed to read input directory",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(videos) == 0 {
			s.logger.Debug("no videos found in directory", slog.String("path", path))
			continue
		}
		groups[path] = append(groups[path], videos...)
	}

	for dir, videos := range groups {
		groups[dir] = dedupe(videos)
	}
	return groups
}

func (s *Scanner) listVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var videos []string
	for _, entry := range entries {
		if !IsVideo(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		// Follow symlinks so a linked video counts but a linked directory does not.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		videos = append(videos, path)
	}
	return videos, nil
}

// dedupe drops repeated paths, which happen when the same file is listed both
// directly and through its directory.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Tag derives the short label used in output names from a directory path.
func Tag(dir string) string {
	base := filepath.Base(filepath.Clean(dir))
	switch base {
	case ".", "..", string(filepath.Separator), "":
		return "default"
	}
	return base
}
