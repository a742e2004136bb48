package rgethttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rget/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

// FetchSequential downloads url into outputPath over a single stream. With
// resume set and existing > 0 it asks for the remainder and appends; a server
// that answers anything but 206 gets the partial file discarded and a fresh
// download. Without resume the file is always truncated and no Range header
// is sent.
func FetchSequential(ctx context.Context, client utils.HTTPDoer, url, outputPath string, existing int64, resume bool, progress utils.ProgressFunc) (int64, error) {
	ctx, span := startSpan(ctx, "sequential.fetch",
		attribute.String("path", outputPath),
		attribute.Int64("existing", existing),
		attribute.Bool("resume", resume),
	)
	written, err := fetchSequential(ctx, client, url, outputPath, existing, resume, progress)
	span.SetAttributes(attribute.Int64("written", written))
	endSpan(span, err)
	return written, err
}

func fetchSequential(ctx context.Context, client utils.HTTPDoer, url, outputPath string, existing int64, resume bool, progress utils.ProgressFunc) (int64, error) {
	if resume && existing > 0 {
		resp, err := sequentialRequest(ctx, client, url, existing)
		if err != nil {
			return 0, err
		}
		if resp.StatusCode == http.StatusPartialContent {
			defer resp.Body.Close()
			log.Debug().Str("op", "http/simple-downloader").Msgf("Resuming download from offset %d", existing)
			outFile, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return 0, fmt.Errorf("%w: error opening output file: %w", utils.ErrIOFailure, err)
			}
			return streamToFile(outFile, resp.Body, progress)
		}
		resp.Body.Close()
		log.Warn().Str("op", "http/simple-downloader").Err(utils.ErrResumeRejected).Msgf("Status %d, restarting download", resp.StatusCode)
		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: error removing partial file: %w", utils.ErrIOFailure, err)
		}
	}

	resp, err := sequentialRequest(ctx, client, url, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &utils.StatusError{StatusCode: resp.StatusCode, Err: utils.ErrUnexpectedStatus}
	}
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: error creating output file: %w", utils.ErrIOFailure, err)
	}
	return streamToFile(outFile, resp.Body, progress)
}

// sequentialRequest sends a GET, open-ended ranged from offset when offset > 0.
func sequentialRequest(ctx context.Context, client utils.HTTPDoer, url string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request: %w", err)
	}
	return resp, nil
}

// streamToFile appends body to outFile and closes it.
func streamToFile(outFile *os.File, body io.Reader, progress utils.ProgressFunc) (int64, error) {
	defer outFile.Close()
	var written int64
	buffer := make([]byte, utils.DefaultBufferSize)
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return written, fmt.Errorf("%w: error writing to output file: %w", utils.ErrIOFailure, writeErr)
			}
			written += int64(bytesRead)
			progress.Emit(utils.SequentialSegmentID, int64(bytesRead))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if err := outFile.Sync(); err != nil {
		return written, fmt.Errorf("%w: error syncing output file: %w", utils.ErrIOFailure, err)
	}
	return written, nil
}
