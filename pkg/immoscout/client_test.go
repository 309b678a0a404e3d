package immoscout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/fibertransport"
	"immoscoutclient/pkg/impersonate"
	"immoscoutclient/pkg/transport"
)

const wantSearchBody = `{"supportedResultListType":[],"userData":{}}`

type stubResp struct {
	status int
	body   []byte
}

func (r stubResp) StatusCode() int { return r.status }
func (r stubResp) Body() []byte    { return r.body }

type request struct {
	method string
	url    string
	body   any
}

// stubDoer answers every request with reply and records what was sent.
type stubDoer struct {
	reply  func(req request) (transport.Response, error)
	mu     sync.Mutex
	seen   []request
	closed atomic.Int32
}

func (s *stubDoer) record(req request) (transport.Response, error) {
	s.mu.Lock()
	s.seen = append(s.seen, req)
	s.mu.Unlock()
	return s.reply(req)
}

func (s *stubDoer) Get(ctx context.Context, url string) (transport.Response, error) {
	return s.record(request{method: http.MethodGet, url: url})
}

func (s *stubDoer) Post(ctx context.Context, url string, body any) (transport.Response, error) {
	return s.record(request{method: http.MethodPost, url: url, body: body})
}

func (s *stubDoer) Close() { s.closed.Add(1) }

func fixedBody(body string) func(request) (transport.Response, error) {
	return func(request) (transport.Response, error) {
		return stubResp{status: 200, body: []byte(body)}, nil
	}
}

func failWith(err error) func(request) (transport.Response, error) {
	return func(request) (transport.Response, error) { return nil, err }
}

func newStubClient(t *testing.T, d *stubDoer) *Client {
	t.Helper()
	c, err := New(config.DefaultConfig(), WithTransport(d))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSearchList_ReturnsBodyUnchanged(t *testing.T) {
	d := &stubDoer{reply: fixedBody(`{"numberOfPages":3,"resultListItems":[{"id":"151"}],"empty":null}`)}
	c := newStubClient(t, d)

	got, err := c.SearchList(context.Background(), "https://mobile.example/search/123", 3)
	if err != nil {
		t.Fatalf("SearchList error: %v", err)
	}
	want := map[string]any{
		"numberOfPages":   json.Number("3"),
		"resultListItems": []any{map[string]any{"id": "151"}},
		"empty":           nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}

	if len(d.seen) != 1 {
		t.Fatalf("requests=%d, want 1", len(d.seen))
	}
	req := d.seen[0]
	if req.method != http.MethodPost || req.url != "https://mobile.example/search/123?pagenumber=3" {
		t.Fatalf("unexpected request %s %s", req.method, req.url)
	}
	raw, err := json.Marshal(req.body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	if string(raw) != wantSearchBody {
		t.Fatalf("search body=%s, want %s", raw, wantSearchBody)
	}
}

func TestPropertyDetails_ReturnsBodyUnchanged(t *testing.T) {
	d := &stubDoer{reply: fixedBody(`[{"type":"TEXT_AREA"},true,12.5]`)}
	c := newStubClient(t, d)

	got, err := c.PropertyDetails(context.Background(), 151234567)
	if err != nil {
		t.Fatalf("PropertyDetails error: %v", err)
	}
	want := []any{map[string]any{"type": "TEXT_AREA"}, true, json.Number("12.5")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}

	req := d.seen[0]
	if req.method != http.MethodGet || req.url != "https://api.mobile.immobilienscout24.de/expose/151234567" {
		t.Fatalf("unexpected request %s %s", req.method, req.url)
	}
	if req.body != nil {
		t.Fatalf("GET carried a body: %#v", req.body)
	}
}

func TestSearchList_StatusFailure(t *testing.T) {
	cause := &transport.StatusError{Code: http.StatusNotFound, URL: "https://mobile.example/search"}
	d := &stubDoer{reply: failWith(cause)}
	c := newStubClient(t, d)

	_, err := c.SearchList(context.Background(), "https://mobile.example/search", 2)

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError, got %T %v", err, err)
	}
	if he.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", he.StatusCode)
	}
	if !strings.Contains(he.Message, "search results page 2") {
		t.Fatalf("message lacks page context: %q", he.Message)
	}
	if !strings.HasPrefix(err.Error(), "HTTP 404: ") {
		t.Fatalf("Error()=%q", err.Error())
	}
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("HTTPError does not match ErrAPI")
	}
	var se *transport.StatusError
	if !errors.As(err, &se) || se != cause {
		t.Fatalf("cause not preserved: %v", err)
	}
}

func TestPropertyDetails_FailureWithoutStatus(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	d := &stubDoer{reply: failWith(cause)}
	c := newStubClient(t, d)

	_, err := c.PropertyDetails(context.Background(), 42)

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("want *HTTPError, got %v", err)
	}
	if he.StatusCode != 0 {
		t.Fatalf("status=%d, want 0", he.StatusCode)
	}
	if !strings.Contains(he.Message, "listing 42") || !strings.Contains(he.Message, "connection refused") {
		t.Fatalf("message=%q", he.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped")
	}
}

func TestFailureMessages(t *testing.T) {
	d := &stubDoer{reply: failWith(errors.New("connection reset"))}
	c := newStubClient(t, d)

	_, err := c.SearchList(context.Background(), "https://mobile.example/search/list", 3)
	if got, want := err.Error(), "HTTP 0: failed to fetch search results page 3: connection reset"; got != want {
		t.Fatalf("search: got %q, want %q", got, want)
	}

	_, err = c.PropertyDetails(context.Background(), 123)
	if got, want := err.Error(), "HTTP 0: failed to fetch property details for listing 123: connection reset"; got != want {
		t.Fatalf("details: got %q, want %q", got, want)
	}
}

func TestDecodeFailuresBecomeHTTPErrors(t *testing.T) {
	for _, body := range []string{"", "<html>maintenance</html>", `{"a":1} trailing`, `{"a":`} {
		d := &stubDoer{reply: fixedBody(body)}
		c := newStubClient(t, d)

		_, err := c.PropertyDetails(context.Background(), 7)
		var he *HTTPError
		if !errors.As(err, &he) || he.StatusCode != 0 {
			t.Fatalf("body %q: want HTTPError with status 0, got %v", body, err)
		}
		if !strings.Contains(he.Message, "decode response body") {
			t.Fatalf("body %q: message=%q", body, he.Message)
		}
	}
}

func TestInvalidArgumentsSkipTransport(t *testing.T) {
	d := &stubDoer{reply: fixedBody(`{}`)}
	c := newStubClient(t, d)

	if _, err := c.SearchList(context.Background(), "https://mobile.example/search", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("page 0: want ErrInvalidArgument, got %v", err)
	}
	if _, err := c.PropertyDetails(context.Background(), -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("id -1: want ErrInvalidArgument, got %v", err)
	}
	if len(d.seen) != 0 {
		t.Fatalf("transport called %d times for invalid input", len(d.seen))
	}
}

func TestClose_LeavesInjectedTransportOpen(t *testing.T) {
	d := &stubDoer{reply: fixedBody(`{}`)}
	c := newStubClient(t, d)

	c.Close()
	c.Close()
	if n := d.closed.Load(); n != 0 {
		t.Fatalf("injected transport closed %d times", n)
	}
}

func TestNew_BackendSelection(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend = "carrier-pigeon"
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	cfg = config.DefaultConfig()
	cfg.Backend = config.BackendFiber
	if _, err := New(cfg); !errors.Is(err, fibertransport.ErrImpersonationUnsupported) {
		t.Fatalf("fiber with OkHttp5: want ErrImpersonationUnsupported, got %v", err)
	}

	cfg.Impersonate = impersonate.None
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("fiber without impersonation: %v", err)
	}
	c.Close()

	c, err = New(config.Config{})
	if err != nil {
		t.Fatalf("zero config: %v", err)
	}
	c.Close()
}

func TestWithLogger_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	d := &stubDoer{reply: failWith(&transport.StatusError{Code: http.StatusTooManyRequests})}
	c, err := New(config.DefaultConfig(), WithTransport(d), WithLogger(logger))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, _ = c.PropertyDetails(context.Background(), 99)

	out := buf.String()
	for _, want := range []string{`"request_id"`, `"msg":"sending request"`, `"msg":"request failed"`, `"status":429`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log lacks %s:\n%s", want, out)
		}
	}
}

func newLiveClient(t *testing.T, backend string) *Client {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Backend = backend
	cfg.Impersonate = impersonate.None
	cfg.RequestTimeout = 3 * time.Second
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%s): %v", backend, err)
	}
	return c
}

// searchServer validates the search request and echoes the requested page.
func searchServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		switch {
		case r.Method != http.MethodPost:
			http.Error(w, "method "+r.Method, http.StatusMethodNotAllowed)
		case strings.TrimSpace(string(raw)) != wantSearchBody:
			http.Error(w, "body "+string(raw), http.StatusBadRequest)
		case r.Header.Get("User-Agent") != config.DefaultUserAgent:
			http.Error(w, "user agent "+r.Header.Get("User-Agent"), http.StatusForbidden)
		default:
			if r.URL.Query().Get("slow") != "" {
				time.Sleep(300 * time.Millisecond)
			}
			_, _ = w.Write([]byte(`{"page":` + r.URL.Query().Get("pagenumber") + `}`))
		}
	}))
}

func TestSearchList_ConcurrentPagesNoCrossTalk(t *testing.T) {
	srv := searchServer()
	defer srv.Close()

	for _, backend := range []string{config.BackendResty, config.BackendFiber} {
		t.Run(backend, func(t *testing.T) {
			c := newLiveClient(t, backend)
			defer c.Close()

			mobile := srv.URL + "/search/list?searchType=region&realestatetype=apartmentrent"
			results := make([]any, 3)
			errs := make([]error, 3)

			var wg sync.WaitGroup
			for page := 1; page <= 2; page++ {
				wg.Add(1)
				go func(page int) {
					defer wg.Done()
					results[page], errs[page] = c.SearchList(context.Background(), mobile, page)
				}(page)
			}
			wg.Wait()

			for page := 1; page <= 2; page++ {
				if errs[page] != nil {
					t.Fatalf("page %d: %v", page, errs[page])
				}
				want := map[string]any{"page": json.Number(string(rune('0' + page)))}
				if !reflect.DeepEqual(results[page], want) {
					t.Fatalf("page %d: got %#v", page, results[page])
				}
			}
		})
	}
}

func TestSearchList_ServerErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newLiveClient(t, config.BackendResty)
	defer c.Close()

	_, err := c.SearchList(context.Background(), srv.URL+"/search/list", 4)
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want HTTPError 503, got %v", err)
	}
}

func TestSearchList_CancelThenReuse(t *testing.T) {
	srv := searchServer()
	defer srv.Close()

	for _, backend := range []string{config.BackendResty, config.BackendFiber} {
		t.Run(backend, func(t *testing.T) {
			c := newLiveClient(t, backend)
			defer c.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := c.SearchList(ctx, srv.URL+"/search/list?slow=1", 1)
			var he *HTTPError
			if !errors.As(err, &he) || he.StatusCode != 0 {
				t.Fatalf("want HTTPError with status 0, got %v", err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("want deadline in the chain, got %v", err)
			}
			if elapsed := time.Since(start); elapsed >= 250*time.Millisecond {
				t.Fatalf("request outlived its context: %v", elapsed)
			}

			got, err := c.SearchList(context.Background(), srv.URL+"/search/list", 5)
			if err != nil {
				t.Fatalf("client unusable after cancellation: %v", err)
			}
			if !reflect.DeepEqual(got, map[string]any{"page": json.Number("5")}) {
				t.Fatalf("got %#v", got)
			}
		})
	}
}
