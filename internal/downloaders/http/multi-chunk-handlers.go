package rgethttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rget/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

// FetchSegment downloads seg with a ranged GET and writes it into w at the
// segment's own offsets. Only a 206 response is accepted; a 200 means the
// server ignored the Range header and its body cannot be placed safely.
func FetchSegment(ctx context.Context, client utils.HTTPDoer, url string, seg utils.Segment, w utils.PositionalWriter, progress utils.ProgressFunc) (int64, error) {
	ctx, span := startSpan(ctx, "segment.fetch",
		attribute.Int("segment", seg.ID),
		attribute.Int64("start", seg.Start),
		attribute.Int64("end", seg.End),
	)
	written, err := fetchSegment(ctx, client, url, seg, w, progress)
	span.SetAttributes(attribute.Int64("written", written))
	endSpan(span, err)
	return written, err
}

func fetchSegment(ctx context.Context, client utils.HTTPDoer, url string, seg utils.Segment, w utils.PositionalWriter, progress utils.ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", seg.Start, seg.End))
	req.Header.Set("Connection", "keep-alive")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, &utils.StatusError{StatusCode: resp.StatusCode, Err: utils.ErrUnsupportedRange}
	}

	cursor := seg.Start
	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			chunk := buffer[:bytesRead]
			if cursor+int64(bytesRead) > seg.End+1 {
				return cursor - seg.Start, fmt.Errorf("%w: server sent more than %d bytes", utils.ErrIncompleteSegment, seg.Len())
			}
			if _, writeErr := w.WriteAt(chunk, cursor); writeErr != nil {
				return cursor - seg.Start, fmt.Errorf("%w: %w", utils.ErrIOFailure, writeErr)
			}
			cursor += int64(bytesRead)
			progress.Emit(seg.ID, int64(bytesRead))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return cursor - seg.Start, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	log.Debug().Str("op", "http/segment").Msgf("Segment %s finished", seg)
	return cursor - seg.Start, nil
}
