package utils

import (
	"net"
	"net/http"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	UserAgent      string
	Headers        map[string]string
	RateLimit      int  // requests per second, 0 disables throttling
	HighThreadMode bool // advanced socket options for high concurrency
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RgetHTTPClient applies the configured timeout, user agent and headers to
// every outbound request.
type RgetHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewRgetHTTPClient(cfg HTTPClientConfig) *RgetHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true, // ranges address raw bytes
		MaxConnsPerHost:     0,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	var rt http.RoundTripper = transport
	if cfg.RateLimit > 0 {
		throttled, err := NewThrottle(cfg.RateLimit, cfg.RateLimit, transport)
		if err == nil {
			rt = throttled
		}
	}
	return &RgetHTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: rt,
		},
		config: cfg,
	}
}

// NewRgetHTTPClientFrom wraps an existing client, keeping its transport and timeout.
func NewRgetHTTPClientFrom(client *http.Client, cfg HTTPClientConfig) *RgetHTTPClient {
	return &RgetHTTPClient{client: client, config: cfg}
}

func (d *RgetHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		if http.CanonicalHeaderKey(k) == "Range" {
			continue
		}
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}
