package network

import (
	"crypto/tls"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// NewH3Transport builds an HTTP/3 RoundTripper. Unlike TCP transports, QUIC
// sessions live inside the http3.Transport itself: connections open lazily
// on the first request and are multiplexed per host.
//
// Every target must speak https; requests for other schemes fail inside
// quic-go.
func NewH3Transport(config *ClientConfig) *http3.RoundTripper {
	if config == nil {
		config = NewBrowserClientConfig()
	}

	var tlsConfig *tls.Config
	if config.TLSConfig != nil {
		tlsConfig = config.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	tlsConfig.InsecureSkipVerify = config.InsecureSkipVerify
	tlsConfig.NextProtos = []string{"h3"}

	keepAlive := config.H3KeepAlivePeriod
	if keepAlive == 0 {
		keepAlive = DefaultKeepAliveInterval
	}

	return &http3.RoundTripper{
		TLSClientConfig: tlsConfig,
		QUICConfig: &quic.Config{
			KeepAlivePeriod: keepAlive,
			MaxIdleTimeout:  config.IdleConnTimeout,
		},
	}
}
