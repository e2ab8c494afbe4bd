// Package tunnel publishes the local cluster proxy on a public ngrok URL so a
// hosted dashboard can reach it.
package tunnel

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.ngrok.com/ngrok/v2"
)

type Config struct {
	AuthToken string
	// Domain is an optional reserved ngrok domain.
	Domain string
	// DryRun skips ngrok and reports the upstream as the public URL.
	DryRun bool
}

func (c Config) Validate() error {
	if c.DryRun {
		return nil
	}
	if c.AuthToken == "" {
		return fmt.Errorf("ngrok auth token is required")
	}
	if c.Domain != "" {
		if _, err := url.Parse(c.Domain); err != nil {
			return fmt.Errorf("invalid ngrok domain %q: %w", c.Domain, err)
		}
	}
	return nil
}

// Tunnel is a running forwarder.
type Tunnel struct {
	url   string
	done  <-chan struct{}
	close func() error
	once  sync.Once
	err   error
}

// URL is the public address browsers should use.
func (t *Tunnel) URL() string { return t.url }

// Done is closed when the forwarder stops.
func (t *Tunnel) Done() <-chan struct{} { return t.done }

func (t *Tunnel) Close() error {
	t.once.Do(func() { t.err = t.close() })
	return t.err
}

// Start forwards public traffic to upstream until ctx ends or Close is called.
func Start(ctx context.Context, cfg Config, upstream string, log *zap.SugaredLogger) (*Tunnel, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(upstream); err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", upstream, err)
	}

	if cfg.DryRun {
		ctx, cancel := context.WithCancel(ctx)
		log.Infow("tunnel dry run", "upstream", upstream)
		return &Tunnel{
			url:   upstream,
			done:  ctx.Done(),
			close: func() error { cancel(); return nil },
		}, nil
	}

	log.Infow("starting ngrok tunnel", "upstream", upstream, "domain", cfg.Domain)
	agent, err := ngrok.NewAgent(
		ngrok.WithAuthtoken(cfg.AuthToken),
		ngrok.WithEventHandler(func(e ngrok.Event) {
			log.Debugw("ngrok event", "type", e.EventType(), "at", e.Timestamp())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	endpointOpts := []ngrok.EndpointOption{
		ngrok.WithDescription("kaos-ui cluster proxy"),
	}
	if cfg.Domain != "" {
		endpointOpts = append(endpointOpts, ngrok.WithURL(cfg.Domain))
	}
	forwarder, err := agent.Forward(ctx, ngrok.WithUpstream(upstream), endpointOpts...)
	if err != nil {
		_ = agent.Disconnect()
		return nil, fmt.Errorf("ngrok forward: %w", err)
	}

	public := forwarder.URL().String()
	log.Infow("ngrok forwarding live", "url", public)

	t := &Tunnel{
		url:  public,
		done: forwarder.Done(),
		close: func() error {
			if err := forwarder.Close(); err != nil {
				return err
			}
			return agent.Disconnect()
		},
	}
	go func() {
		<-forwarder.Done()
		log.Infow("ngrok forwarding stopped", "url", public)
	}()
	return t, nil
}
