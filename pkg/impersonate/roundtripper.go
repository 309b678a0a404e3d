package impersonate

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/http2"
)

// RoundTripper sends https requests over whichever protocol the
// impersonated handshake negotiated with the host: h2 through an
// x/net/http2 transport, anything else through the wrapped http.Transport.
// Plain http goes straight to the http.Transport.
type RoundTripper struct {
	dialer *Dialer
	h1     *http.Transport
	h2     *http2.Transport

	mu     sync.Mutex
	protos map[string]string
	// parked holds handshaken conns from protocol discovery until the
	// matching transport dials the same address.
	parked map[string][]net.Conn
}

var _ http.RoundTripper = (*RoundTripper)(nil)

// NewRoundTripper takes over h1's TLS dialing.
func NewRoundTripper(d *Dialer, h1 *http.Transport) *RoundTripper {
	rt := &RoundTripper{
		dialer: d,
		h1:     h1,
		protos: make(map[string]string),
		parked: make(map[string][]net.Conn),
	}
	h1.DialTLSContext = rt.take
	rt.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return rt.take(ctx, network, addr)
		},
		IdleConnTimeout: h1.IdleConnTimeout,
	}
	return rt
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return rt.h1.RoundTrip(req)
	}
	proto, err := rt.protocol(req.Context(), hostAddr(req))
	if err != nil {
		return nil, err
	}
	if proto == http2.NextProtoTLS {
		return rt.h2.RoundTrip(req)
	}
	return rt.h1.RoundTrip(req)
}

// Protocol reports the ALPN protocol recorded for addr, if any.
func (rt *RoundTripper) Protocol(addr string) (string, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	p, ok := rt.protos[addr]
	return p, ok
}

func (rt *RoundTripper) CloseIdleConnections() {
	rt.mu.Lock()
	parked := rt.parked
	rt.parked = make(map[string][]net.Conn)
	rt.mu.Unlock()

	for _, conns := range parked {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	rt.h1.CloseIdleConnections()
	rt.h2.CloseIdleConnections()
}

func (rt *RoundTripper) protocol(ctx context.Context, addr string) (string, error) {
	if p, ok := rt.Protocol(addr); ok {
		return p, nil
	}

	conn, err := rt.dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	proto := conn.ConnectionState().NegotiatedProtocol

	rt.mu.Lock()
	rt.protos[addr] = proto
	rt.parked[addr] = append(rt.parked[addr], conn)
	rt.mu.Unlock()
	return proto, nil
}

func (rt *RoundTripper) take(ctx context.Context, network, addr string) (net.Conn, error) {
	rt.mu.Lock()
	if conns := rt.parked[addr]; len(conns) > 0 {
		c := conns[len(conns)-1]
		rt.parked[addr] = conns[:len(conns)-1]
		rt.mu.Unlock()
		return c, nil
	}
	rt.mu.Unlock()
	return rt.dialer.DialTLSContext(ctx, network, addr)
}

func hostAddr(req *http.Request) string {
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}
	return net.JoinHostPort(req.URL.Hostname(), port)
}
