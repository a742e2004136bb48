package rgethttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/rget/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

// Probe learns the length and range support of url. It is ProbeLength
// followed by ProbeRanges; range support is only checked when the length is known.
func Probe(ctx context.Context, client utils.HTTPDoer, url string) (utils.ResourceInfo, error) {
	info, err := ProbeLength(ctx, client, url)
	if err != nil {
		return info, err
	}
	if info.LengthKnown {
		info.RangeSupported = ProbeRanges(ctx, client, url)
	}
	return info, nil
}

// ProbeLength sends a HEAD request and falls back to a GET whose body is
// never read when HEAD fails or omits Content-Length. A resource whose length
// neither request reports has LengthKnown unset; that is not an error.
func ProbeLength(ctx context.Context, client utils.HTTPDoer, url string) (utils.ResourceInfo, error) {
	ctx, span := startSpan(ctx, "probe.length", attribute.String("url", url))
	info, err := probeLength(ctx, client, url)
	span.SetAttributes(attribute.Int64("length", info.Length), attribute.Bool("length_known", info.LengthKnown))
	endSpan(span, err)
	return info, err
}

func probeLength(ctx context.Context, client utils.HTTPDoer, url string) (utils.ResourceInfo, error) {
	var info utils.ResourceInfo
	headInfo, headErr := headerRequest(ctx, client, http.MethodHead, url)
	if headErr == nil {
		info = headInfo
		if info.LengthKnown {
			return info, nil
		}
	} else {
		log.Debug().Str("op", "http/probe").Err(headErr).Msg("HEAD failed, trying GET")
	}
	getInfo, getErr := headerRequest(ctx, client, http.MethodGet, url)
	if getErr != nil {
		if headErr != nil {
			return info, fmt.Errorf("%w: %w", utils.ErrProbeFailed, errors.Join(headErr, getErr))
		}
		log.Debug().Str("op", "http/probe").Err(getErr).Msg("GET for headers failed, length unknown")
		return info, nil
	}
	if getInfo.FileName == "" {
		getInfo.FileName = info.FileName
	}
	return getInfo, nil
}

// headerRequest issues method against url and keeps only the headers.
func headerRequest(ctx context.Context, client utils.HTTPDoer, method, url string) (utils.ResourceInfo, error) {
	var info utils.ResourceInfo
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return info, fmt.Errorf("error creating %s request: %w", method, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return info, fmt.Errorf("error executing %s request: %w", method, err)
	}
	// closing without draining aborts a GET body instead of downloading it
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return info, &utils.StatusError{StatusCode: resp.StatusCode, Err: utils.ErrUnexpectedStatus}
	}
	info.FileName = utils.FileNameFromContentDisposition(resp.Header.Get("Content-Disposition"))
	if size, ok := contentLength(resp); ok {
		info.Length = size
		info.LengthKnown = true
	}
	return info, nil
}

func contentLength(resp *http.Response) (int64, bool) {
	if cl := strings.TrimSpace(resp.Header.Get("Content-Length")); cl != "" {
		size, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && size >= 0 {
			return size, true
		}
		return 0, false
	}
	if resp.Request != nil && resp.Request.Method == http.MethodGet && resp.ContentLength >= 0 {
		return resp.ContentLength, true
	}
	return 0, false
}

// ProbeRanges requests the first byte of url. The server supports ranges if it
// answers 206 or advertises Accept-Ranges. Any failure counts as unsupported.
func ProbeRanges(ctx context.Context, client utils.HTTPDoer, url string) bool {
	ctx, span := startSpan(ctx, "probe.ranges", attribute.String("url", url))
	supported, err := probeRanges(ctx, client, url)
	span.SetAttributes(attribute.Bool("range_supported", supported))
	endSpan(span, err)
	if err != nil {
		log.Debug().Str("op", "http/probe").Err(err).Msg("range probe failed, assuming no range support")
	}
	return supported
}

func probeRanges(ctx context.Context, client utils.HTTPDoer, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("error creating range probe: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("error executing range probe: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusPartialContent {
		return true, nil
	}
	acceptRanges := strings.TrimSpace(resp.Header.Get("Accept-Ranges"))
	return acceptRanges != "" && !strings.EqualFold(acceptRanges, "none"), nil
}
