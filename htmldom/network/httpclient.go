// Package network provides the browser-shaped HTTP stack behind the htmldom
// engine: a tuned TCP/TLS transport preferring HTTP/2, optional HTTP/3 over
// QUIC, transparent response decompression, and a HAR-recording middleware
// with network-idle detection.
package network

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Defaults tuned for page fetching rather than bulk scanning: generous
// per-host pools and keep-alives, browser-like connection limits.
const (
	DefaultDialTimeout           = 15 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout        = 120 * time.Second

	DefaultMaxIdleConns        = 200
	DefaultMaxIdleConnsPerHost = 10
	DefaultMaxConnsPerHost     = 15
	DefaultIdleConnTimeout     = 90 * time.Second
)

const requiredMinTLSVersion = tls.VersionTLS12

// ClientConfig holds the configuration for the engine's HTTP client.
type ClientConfig struct {
	// Security
	InsecureSkipVerify bool
	TLSConfig          *tls.Config

	// Timeouts
	RequestTimeout time.Duration
	DialTimeout    time.Duration
	KeepAlive      time.Duration

	// Connection pool
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	// Proxy
	ProxyURL *url.URL

	// EnableHTTP3 swaps the TCP transport for a QUIC one. Requires every
	// target to speak https.
	EnableHTTP3       bool
	H3KeepAlivePeriod time.Duration

	// State management
	CookieJar http.CookieJar

	Logger *zap.Logger
}

// NewBrowserClientConfig creates a configuration suitable for emulated web
// browsing, including an in-memory cookie jar.
func NewBrowserClientConfig() *ClientConfig {
	// cookiejar.New only errors on invalid options; nil options cannot fail.
	jar, _ := cookiejar.New(nil)

	return &ClientConfig{
		InsecureSkipVerify:  false,
		RequestTimeout:      DefaultRequestTimeout,
		DialTimeout:         DefaultDialTimeout,
		KeepAlive:           DefaultKeepAliveInterval,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		CookieJar:           jar,
		Logger:              zap.NewNop(),
	}
}

// NewHTTPTransport creates the base TCP transport.
func NewHTTPTransport(config *ClientConfig) *http.Transport {
	if config == nil {
		config = NewBrowserClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAlive,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, netw, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, netw, addr)
		},
		TLSClientConfig:       configureTLS(config),
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		// The transport's built-in gzip handling must stay off; the
		// decompression middleware covers gzip, deflate and brotli and
		// would otherwise double-decode.
		DisableCompression: true,
		ForceAttemptHTTP2:  true,
	}

	if config.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(config.ProxyURL)
	}

	return transport
}

// NewClient assembles the configured http.Client: base transport (TCP or
// QUIC per config) wrapped in the decompression middleware. Redirects are
// never followed automatically; the engine walks them itself to track
// navigation state and referers.
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = NewBrowserClientConfig()
	}

	var base http.RoundTripper
	if config.EnableHTTP3 {
		base = NewH3Transport(config)
	} else {
		base = NewHTTPTransport(config)
	}

	return &http.Client{
		Transport: NewDecompressionMiddleware(base),
		Timeout:   config.RequestTimeout,
		Jar:       config.CookieJar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// configureTLS hardens the TLS settings and sets up ALPN so HTTP/2 is
// preferred when the server offers it.
func configureTLS(config *ClientConfig) *tls.Config {
	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}

	if tlsConfig.MinVersion < requiredMinTLSVersion {
		tlsConfig.MinVersion = requiredMinTLSVersion
	}
	if len(tlsConfig.NextProtos) == 0 {
		// "h2" listed first so HTTP/2 wins the negotiation.
		tlsConfig.NextProtos = []string{"h2", "http/1.1"}
	}
	tlsConfig.InsecureSkipVerify = config.InsecureSkipVerify

	return tlsConfig
}
