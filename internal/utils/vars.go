package utils

import (
	"errors"
	"regexp"
)

const DefaultBufferSize = 1024 * 256 // 256KB read buffer per connection
const DefaultConnections = 8
const DefaultFileName = "downloaded_file"
const MaxTotalConnections = 64
const ToolUserAgent = "rget/1.0"

var (
	ErrProbeFailed       = errors.New("probe failed")
	ErrUnsupportedRange  = errors.New("server did not honor range request")
	ErrIncompleteSegment = errors.New("incomplete segment")
	ErrResumeRejected    = errors.New("server rejected resume request")
	ErrIOFailure         = errors.New("output file failure")
	ErrUnexpectedStatus  = errors.New("unexpected status code")
)

var FileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// Local-only User-Agent list
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
