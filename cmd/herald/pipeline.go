// ABOUTME: Wires config into a storage backend, dedup policy, extractor and forwarder
// ABOUTME: Shared by run, once, preview and mcp so every command sees the same pipeline

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harper/herald/internal/fetch"
	"github.com/harper/herald/internal/forward"
	"github.com/harper/herald/internal/ledger"
	"github.com/harper/herald/internal/metrics"
	"github.com/harper/herald/internal/slack"
	"github.com/harper/herald/internal/storage"
)

type pipeline struct {
	store   storage.Store
	policy  ledger.Policy
	poster  *slack.Poster
	metrics *metrics.Metrics
	fwd     *forward.Forwarder
}

// openPipeline builds the forwarder. With deliver set the Slack channel is
// resolved and the forwarder can post; otherwise it is only good for Preview.
func openPipeline(ctx context.Context, deliver bool) (*pipeline, error) {
	if deliver {
		if err := cfg.ValidateDelivery(); err != nil {
			return nil, err
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	extractor, err := cfg.NewExtractor()
	if err != nil {
		return nil, err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", cfg.Backend, err)
	}
	p := &pipeline{store: store, metrics: metrics.New(nil)}

	p.policy, err = cfg.NewPolicy(store)
	if err != nil {
		p.Close()
		return nil, err
	}

	var deliverer forward.Deliverer
	if deliver {
		p.poster, err = resolvePoster(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		deliverer = p.poster
	}

	p.fwd = forward.New(forward.Options{
		FeedURL:   cfg.FeedURL,
		Fetcher:   fetch.New(cfg.UserAgent, cfg.HTTPTimeout),
		Extractor: extractor,
		Policy:    p.policy,
		Store:     store,
		Deliverer: deliverer,
		Metrics:   p.metrics,
		PostDelay: cfg.PostDelay,
	})
	return p, nil
}

func resolvePoster(ctx context.Context) (*slack.Poster, error) {
	poster := cfg.NewPoster(cfg.ChannelID)
	if cfg.ChannelID != "" {
		return poster, nil
	}

	id, err := poster.ResolveChannel(ctx, cfg.ChannelName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %q: %w", cfg.ChannelName, err)
	}
	slog.Info("resolved channel", "channel", cfg.ChannelName, "channel_id", id)
	poster.Channel = id
	return poster, nil
}

func (p *pipeline) Close() {
	if err := p.store.Close(); err != nil {
		slog.Warn("failed to close ledger", "err", err)
	}
}
