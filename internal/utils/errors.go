package utils

import "fmt"

// PhaseError names the phase of a run that failed.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// SegmentError carries the bounds of the segment that failed.
type SegmentError struct {
	Segment Segment
	Written int64
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d [%d-%d]: %v (wrote %d of %d bytes)",
		e.Segment.ID, e.Segment.Start, e.Segment.End, e.Err, e.Written, e.Segment.Len())
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// StatusError reports a response status the caller did not expect.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d", e.Err, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
