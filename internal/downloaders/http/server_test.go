package rgethttp

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Range  string
}

// fileServer serves data with configurable range behaviour and records every
// request it sees.
type fileServer struct {
	data        []byte
	ranges      bool           // honor Range headers
	omitLength  bool           // never send Content-Length
	headStatus  int            // non-zero overrides the HEAD status
	rejectStart map[int64]bool // answer 200 to ranges starting at these offsets

	mu       sync.Mutex
	requests []recordedRequest
}

func newFileServer(t *testing.T, fs *fileServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return srv
}

func testData(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 42))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.IntN(256))
	}
	return data
}

func (fs *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.requests = append(fs.requests, recordedRequest{Method: r.Method, Range: r.Header.Get("Range")})
	fs.mu.Unlock()

	if r.Method == http.MethodHead {
		if fs.headStatus != 0 {
			w.WriteHeader(fs.headStatus)
			return
		}
		if !fs.omitLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(fs.data)))
		}
		if fs.ranges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if rng := r.Header.Get("Range"); rng != "" && fs.ranges {
		start, end, ok := parseRange(rng, int64(len(fs.data)))
		if !ok {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if !fs.rejectStart[start] {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(fs.data)))
			w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(fs.data[start : end+1])
			return
		}
	}

	if fs.omitLength {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(fs.data)))
		w.WriteHeader(http.StatusOK)
	}
	w.Write(fs.data)
}

func parseRange(header string, size int64) (int64, int64, bool) {
	byteRange, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, _ := strings.Cut(byteRange, "-")
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start >= size {
		return 0, 0, false
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		end = min(end, size-1)
	}
	return start, end, true
}

func (fs *fileServer) recorded() []recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]recordedRequest(nil), fs.requests...)
}

func (fs *fileServer) count(method string) int {
	n := 0
	for _, r := range fs.recorded() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// memWriter is an in-memory PositionalWriter.
type memWriter struct {
	mu  sync.Mutex
	buf []byte
}

func (m *memWriter) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if need := int(off) + len(p); need > len(m.buf) {
		m.buf = append(m.buf, make([]byte, need-len(m.buf))...)
	}
	copy(m.buf[off:], p)
	return len(p), nil
}
