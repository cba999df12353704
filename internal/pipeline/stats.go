package pipeline

import (
	"fmt"
	"time"
)

// Stats summarizes a run.
type Stats struct {
	FilesProcessed int
	FilesFailed    int
	// TotalBytes is the combined size of successfully processed videos.
	TotalBytes int64
	Elapsed    time.Duration
	Errors     []string
	// Outputs lists produced videos and frame directories.
	Outputs []string
}

// SuccessRate returns the percentage of attempted files that succeeded.
func (s Stats) SuccessRate() float64 {
	total := s.FilesProcessed + s.FilesFailed
	if total == 0 {
		return 0
	}
	return float64(s.FilesProcessed) / float64(total) * 100
}

// Merge adds o's counters, errors and outputs to s. Elapsed is not merged.
func (s *Stats) Merge(o Stats) {
	s.FilesProcessed += o.FilesProcessed
	s.FilesFailed += o.FilesFailed
	s.TotalBytes += o.TotalBytes
	s.Errors = append(s.Errors, o.Errors...)
	s.Outputs = append(s.Outputs, o.Outputs...)
}

func (s *Stats) succeeded(size int64) {
	s.FilesProcessed++
	s.TotalBytes += size
}

func (s *Stats) failed(path string, err error) {
	s.FilesFailed++
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", path, err))
}

func (s *Stats) note(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}
