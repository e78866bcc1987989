// Package health aggregates per-plugin credential probes.
//
// Probes run concurrently across plugins, but the aggregated result always
// preserves configuration order: plugins in registration order, credentials
// in config order within each plugin. Probe failures are reported inside the
// result and never as an error.
package health

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/delight-co/finest-grained-auth-proxy/internal/plugins"
)

// ProbeAll runs every plugin's credential probes and returns the flattened,
// order-preserving result list.
func ProbeAll(ctx context.Context, registry *plugins.Registry) []plugins.ProbeResult {
	all := registry.All()
	perPlugin := make([][]plugins.ProbeResult, len(all))

	var g errgroup.Group
	for i, p := range all {
		i, p := i, p
		g.Go(func() error {
			perPlugin[i] = p.Probe(ctx)
			return nil
		})
	}
	g.Wait()

	var out []plugins.ProbeResult
	for _, results := range perPlugin {
		out = append(out, results...)
	}
	if out == nil {
		out = []plugins.ProbeResult{}
	}
	return out
}
