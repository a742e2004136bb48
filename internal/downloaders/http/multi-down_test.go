package rgethttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rget/internal/utils"
)

func newRequest(url, outputPath string, connections int, resume bool) utils.DownloadRequest {
	return utils.DownloadRequest{
		URL:         url,
		OutputPath:  outputPath,
		Connections: connections,
		Timeout:     10 * time.Second,
		Resume:      resume,
		Quiet:       true,
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	return got
}

func TestChooseStrategy(t *testing.T) {
	known := utils.ResourceInfo{Length: 1000, LengthKnown: true, RangeSupported: true}

	testCases := []struct {
		name        string
		info        utils.ResourceInfo
		probeErr    error
		existing    int64
		connections int
		exp         Strategy
	}{
		{name: "segmentable", info: known, connections: 8, exp: StrategySegmented},
		{name: "resumable", info: known, existing: 500, connections: 8, exp: StrategySegmented},
		{name: "complete", info: known, existing: 1000, connections: 8, exp: StrategyComplete},
		{name: "larger than remote", info: known, existing: 1200, connections: 8, exp: StrategyComplete},
		{name: "single connection", info: known, connections: 1, exp: StrategySequential},
		{name: "probe failed", info: known, probeErr: utils.ErrProbeFailed, connections: 8, exp: StrategySequential},
		{name: "unknown length", info: utils.ResourceInfo{RangeSupported: true}, connections: 8, exp: StrategySequential},
		{name: "no ranges", info: utils.ResourceInfo{Length: 1000, LengthKnown: true}, connections: 8, exp: StrategySequential},
		{name: "empty resource", info: utils.ResourceInfo{LengthKnown: true, RangeSupported: true}, connections: 8, exp: StrategySequential},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, ChooseStrategy(tc.info, tc.probeErr, tc.existing, tc.connections))
		})
	}
}

func TestDownloadSegmented(t *testing.T) {
	data := testData(2_000_003)
	fs := &fileServer{data: data, ranges: true}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "big.bin")

	var progressed atomic.Int64
	var states []State
	var start StartInfo
	d := NewDownloader(
		WithProgress(func(ev utils.ProgressEvent) { progressed.Add(ev.Delta) }),
		WithStateFunc(func(s State) { states = append(states, s) }),
		WithStartFunc(func(s StartInfo) { start = s }),
	)

	path, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 4, false))
	require.NoError(t, err)
	assert.Equal(t, outputPath, path)
	assert.Equal(t, data, readFile(t, outputPath))
	assert.Equal(t, int64(len(data)), progressed.Load())

	assert.Equal(t, StrategySegmented, start.Strategy)
	assert.Len(t, start.Segments, 4)
	assert.Equal(t, []State{StateInit, StateProbing, StatePlanning, StateSegmenting, StateJoining, StateDone}, states)

	ranges := map[string]bool{}
	for _, r := range fs.recorded() {
		if r.Method == http.MethodGet {
			ranges[r.Range] = true
		}
	}
	assert.Equal(t, map[string]bool{
		"bytes=0-0":             true,
		"bytes=0-499999":        true,
		"bytes=500000-999999":   true,
		"bytes=1000000-1499999": true,
		"bytes=1500000-2000002": true,
	}, ranges)
}

func TestDownloadOverwritesWithoutResume(t *testing.T) {
	data := testData(10_000)
	srv := newFileServer(t, &fileServer{data: data, ranges: true})
	outputPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(outputPath, testData(50_000), 0644))

	_, err := NewDownloader().Download(context.Background(), newRequest(srv.URL, outputPath, 8, false))
	require.NoError(t, err)
	assert.Equal(t, data, readFile(t, outputPath))
}

func TestDownloadAlreadyComplete(t *testing.T) {
	data := testData(10_000)
	fs := &fileServer{data: data, ranges: true}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(outputPath, data, 0644))

	for range 2 {
		path, err := NewDownloader().Download(context.Background(), newRequest(srv.URL, outputPath, 8, true))
		require.NoError(t, err)
		assert.Equal(t, outputPath, path)
	}
	assert.Zero(t, fs.count(http.MethodGet), "a complete file must not be fetched again")
	assert.Equal(t, data, readFile(t, outputPath))
}

func TestDownloadResumeSegmented(t *testing.T) {
	data := testData(1_000_000)
	fs := &fileServer{data: data, ranges: true}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(outputPath, data[:333_333], 0644))

	var start StartInfo
	d := NewDownloader(WithStartFunc(func(s StartInfo) { start = s }))
	_, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 3, true))
	require.NoError(t, err)
	assert.Equal(t, data, readFile(t, outputPath))

	assert.Equal(t, int64(333_333), start.Existing)
	assert.Equal(t, int64(333_333), start.Segments[0].Start)
	for _, r := range fs.recorded() {
		if r.Method == http.MethodGet && r.Range != "bytes=0-0" {
			from, _, ok := parseRange(r.Range, int64(len(data)))
			require.True(t, ok)
			assert.GreaterOrEqual(t, from, int64(333_333), "resumed bytes must not be fetched again")
		}
	}
}

func TestDownloadResumeSequential(t *testing.T) {
	data := testData(200_000)
	fs := &fileServer{data: data, ranges: true}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(outputPath, data[:77], 0644))

	_, err := NewDownloader().Download(context.Background(), newRequest(srv.URL, outputPath, 1, true))
	require.NoError(t, err)
	assert.Equal(t, data, readFile(t, outputPath))
	assert.Equal(t, []recordedRequest{
		{Method: http.MethodHead},
		{Method: http.MethodGet, Range: "bytes=77-"},
	}, fs.recorded())
}

func TestDownloadFallbackWithoutRanges(t *testing.T) {
	data := testData(200_000)
	fs := &fileServer{data: data}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(outputPath, data[:1000], 0644))

	var start StartInfo
	d := NewDownloader(WithStartFunc(func(s StartInfo) { start = s }))
	_, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 8, true))
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, start.Strategy)
	assert.Equal(t, data, readFile(t, outputPath))

	requests := fs.recorded()
	require.Len(t, requests, 3)
	assert.Equal(t, "bytes=0-0", requests[1].Range)
	assert.Equal(t, recordedRequest{Method: http.MethodGet}, requests[2], "the download itself must not send a Range header")
}

func TestDownloadUnknownLength(t *testing.T) {
	data := testData(150_000)
	fs := &fileServer{data: data, ranges: true, omitLength: true}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	var states []State
	d := NewDownloader(WithStateFunc(func(s State) { states = append(states, s) }))
	_, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 8, false))
	require.NoError(t, err)
	assert.Equal(t, data, readFile(t, outputPath))
	assert.Equal(t, []State{StateInit, StateProbing, StateSequentialDownloading, StateDone}, states)
	for _, r := range fs.recorded() {
		assert.Empty(t, r.Range, "no Range header when the length is unknown")
	}
}

func TestDownloadProbeFailureFallsBack(t *testing.T) {
	data := testData(5000)
	var mu sync.Mutex
	var methods []string
	srv := newFileServer(t, &fileServer{data: data, ranges: true})
	client := utils.NewRgetHTTPClientFrom(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		methods = append(methods, r.Method)
		n := len(methods)
		mu.Unlock()
		if n <= 2 {
			return nil, errors.New("connection reset")
		}
		return http.DefaultTransport.RoundTrip(r)
	})}, utils.HTTPClientConfig{})
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	var start StartInfo
	d := NewDownloader(WithClient(client), WithStartFunc(func(s StartInfo) { start = s }))
	_, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 8, false))
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, start.Strategy)
	assert.Equal(t, data, readFile(t, outputPath))
	assert.Equal(t, []string{http.MethodHead, http.MethodGet, http.MethodGet}, methods)
}

func TestDownloadRangeIgnoredMidRun(t *testing.T) {
	data := testData(1000)
	fs := &fileServer{data: data, ranges: true, rejectStart: map[int64]bool{500: true}}
	srv := newFileServer(t, fs)
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	var states []State
	d := NewDownloader(WithStateFunc(func(s State) { states = append(states, s) }))
	_, err := d.Download(context.Background(), newRequest(srv.URL, outputPath, 4, false))
	require.ErrorIs(t, err, utils.ErrUnsupportedRange)
	assert.Equal(t, StateFailed, states[len(states)-1])

	var segErr *utils.SegmentError
	require.True(t, errors.As(err, &segErr))
	assert.Equal(t, utils.Segment{ID: 2, Start: 500, End: 749}, segErr.Segment)

	var phaseErr *utils.PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, "segmented fetch", phaseErr.Phase)

	// the partial file keeps only the bytes before the failed segment
	assert.Equal(t, data[:500], readFile(t, outputPath))

	fs.mu.Lock()
	fs.rejectStart = nil
	fs.mu.Unlock()
	_, err = NewDownloader().Download(context.Background(), newRequest(srv.URL, outputPath, 4, true))
	require.NoError(t, err)
	assert.Equal(t, data, readFile(t, outputPath))
}

func TestDownloadIncompleteSegment(t *testing.T) {
	data := testData(1000)
	srv := newFileServer(t, &fileServer{data: data, ranges: true})
	client := utils.NewRgetHTTPClientFrom(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		resp, err := http.DefaultTransport.RoundTrip(r)
		if err == nil && r.Header.Get("Range") == "bytes=750-999" {
			resp.Body = &truncatedBody{ReadCloser: resp.Body, remaining: 100}
		}
		return resp, err
	})}, utils.HTTPClientConfig{})
	outputPath := filepath.Join(t.TempDir(), "out.bin")

	_, err := NewDownloader(WithClient(client)).Download(context.Background(), newRequest(srv.URL, outputPath, 4, false))
	require.ErrorIs(t, err, utils.ErrIncompleteSegment)

	var segErr *utils.SegmentError
	require.True(t, errors.As(err, &segErr))
	assert.Equal(t, int64(750), segErr.Segment.Start)
	assert.Equal(t, int64(100), segErr.Written)
	assert.Equal(t, data[:850], readFile(t, outputPath))
}

func TestDownloadOutputPathFromURL(t *testing.T) {
	data := testData(100)
	srv := newFileServer(t, &fileServer{data: data, ranges: true})
	t.Chdir(t.TempDir())

	path, err := NewDownloader().Download(context.Background(), newRequest(srv.URL+"/dist/tool.tar.gz", "", 2, false))
	require.NoError(t, err)
	assert.Equal(t, "tool.tar.gz", path)
	assert.Equal(t, data, readFile(t, path))

	path, err = NewDownloader().Download(context.Background(), newRequest(srv.URL+"/", "", 2, false))
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultFileName, path)
}

func TestDownloadInvalidRequest(t *testing.T) {
	_, err := NewDownloader().Download(context.Background(), newRequest("not a url", "", 0, false))
	var phaseErr *utils.PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, "validate", phaseErr.Phase)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// truncatedBody ends the stream early with a clean EOF.
type truncatedBody struct {
	io.ReadCloser
	remaining int
}

func (b *truncatedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if len(p) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= n
	return n, err
}
