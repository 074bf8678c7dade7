package semcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferro-labs/semcache/internal/logging"
	"github.com/ferro-labs/semcache/internal/metrics"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// Moderate classifies one or more inputs. When the first result, cached or
// live, does not carry one entry per input, the adapter re-fetches exactly
// once with the cache lookup bypassed. A second mismatch is logged and the
// result is returned as is.
func (a *Adapter) Moderate(ctx context.Context, req providers.ModerationRequest) (*providers.ModerationResponse, error) {
	nreq, err := normalize.Moderation(req)
	if err != nil {
		return nil, err
	}
	start := a.now()
	log := logging.FromContext(ctx)

	if rec, ok := a.lookup(ctx, nreq); ok {
		res, err := a.synth.Build(nreq, rec, nil)
		switch {
		case err == nil:
			a.observe(nreq, "cache", start)
			return res.Moderation, nil
		case errors.Is(err, normalize.ErrLengthMismatch):
			log.Info("cached moderation result count mismatch, re-fetching", "error", err.Error())
			return a.refetchModeration(ctx, nreq, req)
		default:
			log.Warn("cached record unusable, calling provider", "modality", string(nreq.Modality), "error", err.Error())
		}
	}

	resp, err := a.liveModeration(ctx, nreq, req)
	if err != nil {
		return nil, err
	}
	a.observe(nreq, "provider", start)
	if len(resp.Results) == nreq.Moderation.Expected {
		return resp, nil
	}
	log.Info("moderation result count mismatch, re-fetching",
		"results", len(resp.Results),
		"inputs", nreq.Moderation.Expected,
	)
	return a.refetchModeration(ctx, nreq, req)
}

func (a *Adapter) refetchModeration(ctx context.Context, nreq *normalize.Request, req providers.ModerationRequest) (*providers.ModerationResponse, error) {
	metrics.ModerationRefetches.Inc()
	bypass := *nreq
	bypass.SkipCache = true

	resp, err := a.liveModeration(ctx, &bypass, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != nreq.Moderation.Expected {
		logging.FromContext(ctx).Warn("moderation result count still mismatched after re-fetch",
			"results", len(resp.Results),
			"inputs", nreq.Moderation.Expected,
		)
	}
	return resp, nil
}

func (a *Adapter) liveModeration(ctx context.Context, nreq *normalize.Request, req providers.ModerationRequest) (*providers.ModerationResponse, error) {
	mp, ok := a.provider.(providers.ModerationProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no moderation endpoint", ErrNotSupported, a.provider.Name())
	}
	if err := a.admit(ctx, nreq); err != nil {
		return nil, err
	}
	resp, err := mp.Moderate(ctx, req)
	if err != nil {
		err = a.providerError(ctx, nreq, err)
		a.guard.Report(err)
		return nil, err
	}
	a.guard.Report(nil)
	metrics.ProviderCalls.WithLabelValues(string(nreq.Modality), "success").Inc()
	a.store(ctx, nreq, a.record(ctx, nreq, resp))
	return resp, nil
}
