// Package http builds the pooled HTTP clients used by the tracking transport
// and the operator CLI.
package http

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request, body included.
	DefaultTimeout = 30 * time.Second

	DefaultMaxIdleConns          = 100
	DefaultMaxIdleConnsPerHost   = 10
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
)

// ClientConfig configures an HTTP client. Zero fields take the defaults.
type ClientConfig struct {
	Timeout time.Duration

	// MaxIdleConns caps idle keep-alive connections across all hosts.
	MaxIdleConns int
	// MaxIdleConnsPerHost caps idle connections per host. A tab simulator
	// talks to one ingest host, so this is the limit that matters there.
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// ResponseHeaderTimeout is the wait for response headers after the
	// request is written. It is capped at Timeout.
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	TLSHandshakeTimeout   time.Duration

	DisableKeepAlives bool
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}
	if c.ResponseHeaderTimeout > c.Timeout {
		c.ResponseHeaderTimeout = c.Timeout
	}
	if c.ExpectContinueTimeout <= 0 {
		c.ExpectContinueTimeout = DefaultExpectContinueTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	}
	return c
}

// NewClient creates an HTTP client with its own pooled transport.
// If cfg is nil, default values are used.
func NewClient(cfg *ClientConfig) *http.Client {
	var c ClientConfig
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          c.MaxIdleConns,
		MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
		IdleConnTimeout:       c.IdleConnTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		ExpectContinueTimeout: c.ExpectContinueTimeout,
		TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
		DisableKeepAlives:     c.DisableKeepAlives,
	}

	return &http.Client{
		Timeout:   c.Timeout,
		Transport: transport,
	}
}
