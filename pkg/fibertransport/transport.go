// Package fibertransport is the fasthttp-based transport backend. It speaks
// the Go TLS ClientHello only, so it refuses impersonation profiles.
// Cancelling a request's context abandons it; fasthttp finishes the
// exchange in the background and the connection returns to the pool.
package fibertransport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/rr"
	"immoscoutclient/pkg/transport"

	fibercli "github.com/gofiber/fiber/v3/client"
	"github.com/valyala/fasthttp"
)

var ErrImpersonationUnsupported = errors.New("fibertransport: impersonation profiles are not supported")

var _ transport.Doer = (*ClientPool)(nil)

type ClientPool struct {
	clients   []*fibercli.Client
	bases     []*fasthttp.Client
	spin      rr.RR
	cfg       config.Config
	closeOnce sync.Once
}

func New(cfg config.Config) (*ClientPool, error) {
	if cfg.Impersonate.Fingerprinted() {
		return nil, fmt.Errorf("%w: %s", ErrImpersonationUnsupported, cfg.Impersonate)
	}
	if cfg.Size <= 0 {
		cfg.Size = config.DefaultConfig().Size
	}
	p := &ClientPool{
		clients: make([]*fibercli.Client, 0, cfg.Size),
		bases:   make([]*fasthttp.Client, 0, cfg.Size),
		cfg:     cfg,
	}
	for i := 0; i < cfg.Size; i++ {
		c, base := newFiberClient(cfg)
		p.clients = append(p.clients, c)
		p.bases = append(p.bases, base)
	}
	return p, nil
}

func (p *ClientPool) Get(ctx context.Context, url string) (transport.Response, error) {
	i := p.spin.Next(len(p.clients))
	res, err := p.clients[i].Get(url, fibercli.Config{Ctx: ctx})
	return finish(ctx, url, res, err)
}

func (p *ClientPool) Post(ctx context.Context, url string, body any) (transport.Response, error) {
	i := p.spin.Next(len(p.clients))
	res, err := p.clients[i].Post(url, fibercli.Config{
		Ctx:  ctx,
		Body: body,
	})
	return finish(ctx, url, res, err)
}

func (p *ClientPool) Close() {
	p.closeOnce.Do(func() {
		for _, b := range p.bases {
			b.CloseIdleConnections()
		}
	})
}

// finish attaches ctx's error when fiber gave up because ctx ended; fiber
// itself only reports ErrTimeoutOrCancel.
func finish(ctx context.Context, url string, res *fibercli.Response, err error) (transport.Response, error) {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	r := transport.NewBuffered(res.StatusCode(), res.Body())
	res.Close()
	if err := transport.CheckStatus(url, r); err != nil {
		return nil, err
	}
	return r, nil
}
