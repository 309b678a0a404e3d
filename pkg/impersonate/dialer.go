package impersonate

import (
	"context"
	"fmt"
	"net"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Dialer opens TLS connections whose ClientHello follows Profile.
type Dialer struct {
	Profile            Profile
	Dialer             *net.Dialer
	HandshakeTimeout   time.Duration
	InsecureSkipVerify bool
}

func NewDialer(p Profile, dialTimeout, handshakeTimeout time.Duration, insecure bool) (*Dialer, error) {
	if !p.Fingerprinted() {
		return nil, fmt.Errorf("%w: %q has no ClientHello", ErrUnknownProfile, p)
	}
	return &Dialer{
		Profile:            p,
		Dialer:             &net.Dialer{Timeout: dialTimeout},
		HandshakeTimeout:   handshakeTimeout,
		InsecureSkipVerify: insecure,
	}, nil
}

// Dial connects to addr and completes the handshake. The negotiated ALPN
// protocol is in the returned conn's ConnectionState.
func (d *Dialer) Dial(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("impersonate: bad address %q: %w", addr, err)
	}

	raw, err := d.Dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	uconn, err := d.Client(raw, host)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("impersonate: %s handshake with %s: %w", d.Profile, addr, err)
	}
	return uconn, nil
}

// DialTLSContext matches http.Transport.DialTLSContext.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.Dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client wraps conn in a uTLS client carrying the profile's ClientHello.
func (d *Dialer) Client(conn net.Conn, serverName string) (*utls.UConn, error) {
	hello, err := d.Profile.ClientHelloSpec()
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: d.InsecureSkipVerify,
	}, utls.HelloCustom)
	if err := uconn.ApplyPreset(&hello); err != nil {
		return nil, fmt.Errorf("impersonate: apply %s preset: %w", d.Profile, err)
	}
	return uconn, nil
}
