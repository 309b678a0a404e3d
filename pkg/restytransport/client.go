package restytransport

import (
	"crypto/tls"
	"net"
	"net/http"

	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/impersonate"

	resty "resty.dev/v3"
)

// roundTripper is what each resty client sends through; resty's Close
// leaves its connections open.
type roundTripper interface {
	http.RoundTripper
	CloseIdleConnections()
}

func newHTTPTransport(cfg config.Config) *http.Transport {
	return &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		TLSHandshakeTimeout:   cfg.TlsTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxIdleConns:          cfg.Size * 16,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		TLSNextProto:          map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
}

// newRoundTripper returns the plain transport, or for a fingerprinted
// profile an impersonating one that also speaks h2.
func newRoundTripper(cfg config.Config) (roundTripper, error) {
	t := newHTTPTransport(cfg)
	if !cfg.Impersonate.Fingerprinted() {
		return t, nil
	}
	d, err := impersonate.NewDialer(cfg.Impersonate, cfg.DialTimeout, cfg.TlsTimeout, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, err
	}
	return impersonate.NewRoundTripper(d, t), nil
}

func newRestyClient(cfg config.Config) (*resty.Client, roundTripper, error) {
	rt, err := newRoundTripper(cfg)
	if err != nil {
		return nil, nil, err
	}
	c := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetTransport(rt).
		SetBaseURL(cfg.BaseURL)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return c, rt, nil
}
