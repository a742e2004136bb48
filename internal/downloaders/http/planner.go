package rgethttp

import "github.com/tanq16/rget/internal/utils"

// PlanSegments partitions [existing, total-1] into at most count contiguous,
// non-overlapping segments ordered by start. The last segment absorbs the
// remainder of the division. When fewer bytes remain than count, every
// segment is one byte long and the unused connections are dropped.
func PlanSegments(existing, total int64, count int) []utils.Segment {
	remaining := total - existing
	if remaining <= 0 {
		return nil
	}
	if count < 1 {
		count = 1
	}
	n := int64(count)
	if remaining < n {
		n = remaining
	}
	base := remaining / n
	segments := make([]utils.Segment, 0, n)
	for i := range n {
		start := existing + i*base
		end := existing + (i+1)*base - 1
		if i == n-1 {
			end = total - 1
		}
		if start > end {
			continue
		}
		segments = append(segments, utils.Segment{ID: len(segments), Start: start, End: end})
	}
	return segments
}
