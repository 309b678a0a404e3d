// Package restytransport is the default transport backend, built on resty
// over net/http with an optional fingerprinting TLS dialer.
package restytransport

import (
	"context"
	"sync"

	"immoscoutclient/pkg/config"
	"immoscoutclient/pkg/rr"
	"immoscoutclient/pkg/transport"

	resty "resty.dev/v3"
)

var _ transport.Doer = (*ClientPool)(nil)

type ClientPool struct {
	clients    []*resty.Client
	transports []roundTripper
	spin       rr.RR
	cfg        config.Config
	closeOnce  sync.Once
}

func New(cfg config.Config) (*ClientPool, error) {
	if cfg.Size <= 0 {
		cfg.Size = config.DefaultConfig().Size
	}

	p := &ClientPool{
		clients:    make([]*resty.Client, 0, cfg.Size),
		transports: make([]roundTripper, 0, cfg.Size),
		cfg:        cfg,
	}
	for i := 0; i < cfg.Size; i++ {
		c, rt, err := newRestyClient(cfg)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.clients = append(p.clients, c)
		p.transports = append(p.transports, rt)
	}
	return p, nil
}

func (p *ClientPool) Get(ctx context.Context, url string) (transport.Response, error) {
	i := p.spin.Next(len(p.clients))
	res, err := p.clients[i].R().SetContext(ctx).Get(url)
	return finish(url, res, err)
}

func (p *ClientPool) Post(ctx context.Context, url string, body any) (transport.Response, error) {
	i := p.spin.Next(len(p.clients))
	res, err := p.clients[i].R().SetContext(ctx).SetBody(body).Post(url)
	return finish(url, res, err)
}

func (p *ClientPool) Close() {
	p.closeOnce.Do(func() {
		for _, c := range p.clients {
			_ = c.Close()
		}
		for _, rt := range p.transports {
			rt.CloseIdleConnections()
		}
	})
}

func finish(url string, res *resty.Response, err error) (transport.Response, error) {
	if err != nil {
		return nil, err
	}
	r := transport.NewBuffered(res.StatusCode(), res.Bytes())
	if err := transport.CheckStatus(url, r); err != nil {
		return nil, err
	}
	return r, nil
}
