package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
	ErrInvalidProxyURL       = errors.New("invalid proxy URL")
)

// ClientConfig carries the transport settings for talking to an identity
// provider.
type ClientConfig struct {
	// CAPem is an optional CA certificate PEM; when empty the installed
	// system CA chain is used.
	CAPem string

	// Proxy is an optional HTTP/S proxy URL.
	Proxy string

	// SkipVerify disables server certificate verification.
	SkipVerify bool

	// Timeout bounds every request, including the body read.  Zero means no
	// timeout.
	Timeout time.Duration
}

// NewClient creates an http client on a pooled transport with the given
// settings applied.
func NewClient(cfg ClientConfig) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()

	if cfg.CAPem != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(cfg.CAPem)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}
	if cfg.SkipVerify {
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = &tls.Config{}
		}
		tr.TLSClientConfig.InsecureSkipVerify = true
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidProxyURL)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   cfg.Timeout,
	}, nil
}
