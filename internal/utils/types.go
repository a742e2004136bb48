package utils

import (
	"fmt"
	"time"
)

// DownloadRequest is the validated input of a single run. The core never mutates it.
type DownloadRequest struct {
	URL         string            `validate:"required,url"`
	OutputPath  string            `validate:"omitempty"`
	Connections int               `validate:"min=1,max=64"`
	Timeout     time.Duration     `validate:"min=0"`
	UserAgent   string            `validate:"omitempty"`
	Resume      bool              `validate:"-"`
	Quiet       bool              `validate:"-"`
	Headers     map[string]string `validate:"-"`
	RateLimit   int               `validate:"min=0"`
}

// HTTPClientConfig returns the client settings implied by the request.
func (r DownloadRequest) HTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:        r.Timeout,
		UserAgent:      r.UserAgent,
		Headers:        r.Headers,
		RateLimit:      r.RateLimit,
		HighThreadMode: r.Connections > 5,
	}
}

// ResourceInfo is what the probe learned about the remote resource.
type ResourceInfo struct {
	Length         int64
	LengthKnown    bool
	RangeSupported bool
	FileName       string
}

// Segment is an inclusive byte range [Start, End] owned by exactly one fetcher.
type Segment struct {
	ID    int
	Start int64
	End   int64
}

func (s Segment) Len() int64 {
	return s.End - s.Start + 1
}

func (s Segment) String() string {
	return fmt.Sprintf("%d [%d-%d]", s.ID, s.Start, s.End)
}

// SequentialSegmentID tags progress emitted by the single-stream path.
const SequentialSegmentID = -1

type ProgressEvent struct {
	SegmentID int
	Delta     int64
}

// ProgressFunc receives progress deltas. It is purely observational and may be nil.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) Emit(segmentID int, delta int64) {
	if f != nil {
		f(ProgressEvent{SegmentID: segmentID, Delta: delta})
	}
}

// PositionalWriter is the only capability a segment fetcher has on the shared
// output file. Regions handed to concurrent writers never overlap.
type PositionalWriter interface {
	WriteAt(p []byte, off int64) (int, error)
}

type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
}
