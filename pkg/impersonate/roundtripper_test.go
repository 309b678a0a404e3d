package impersonate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRoundTripper(t *testing.T, p Profile) *RoundTripper {
	t.Helper()
	d, err := NewDialer(p, 2*time.Second, 2*time.Second, true)
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	rt := NewRoundTripper(d, &http.Transport{})
	t.Cleanup(rt.CloseIdleConnections)
	return rt
}

func get(t *testing.T, rt http.RoundTripper, url string) (*http.Response, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	res, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, string(body)
}

func TestRoundTripper_H2Server(t *testing.T) {
	srv, hellos := helloServer(t, true)
	rt := newTestRoundTripper(t, OkHttp5)

	for i := 0; i < 3; i++ {
		res, body := get(t, rt, srv.URL+"/h2")
		if res.ProtoMajor != 2 || body != "HTTP/2.0" {
			t.Fatalf("request %d: client proto %s, server saw %q", i, res.Proto, body)
		}
	}
	if p, ok := rt.Protocol(srv.Listener.Addr().String()); !ok || p != "h2" {
		t.Fatalf("recorded protocol %q (known=%v), want h2", p, ok)
	}
	if n := len(hellos); n != 1 {
		t.Fatalf("handshakes=%d, want the discovery conn reused", n)
	}
}

func TestRoundTripper_HTTP1Server(t *testing.T) {
	srv, hellos := helloServer(t, false)
	rt := newTestRoundTripper(t, OkHttp5)

	for i := 0; i < 3; i++ {
		res, body := get(t, rt, srv.URL+"/h1")
		if res.ProtoMajor != 1 || body != "HTTP/1.1" {
			t.Fatalf("request %d: client proto %s, server saw %q", i, res.Proto, body)
		}
	}
	if n := len(hellos); n != 1 {
		t.Fatalf("handshakes=%d, want one kept-alive conn", n)
	}
}

func TestRoundTripper_PlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Proto))
	}))
	defer srv.Close()

	rt := newTestRoundTripper(t, OkHttp5)
	if _, body := get(t, rt, srv.URL+"/plain"); body != "HTTP/1.1" {
		t.Fatalf("server saw %q", body)
	}
	if _, ok := rt.Protocol(srv.Listener.Addr().String()); ok {
		t.Fatalf("plain http must not run protocol discovery")
	}
}

func TestRoundTripper_CloseIdleDropsParked(t *testing.T) {
	srv, _ := helloServer(t, true)
	rt := newTestRoundTripper(t, OkHttp5)

	addr := srv.Listener.Addr().String()
	if _, err := rt.protocol(context.Background(), addr); err != nil {
		t.Fatalf("protocol discovery: %v", err)
	}
	rt.CloseIdleConnections()

	rt.mu.Lock()
	n := len(rt.parked[addr])
	rt.mu.Unlock()
	if n != 0 {
		t.Fatalf("parked conns after close: %d", n)
	}
}
