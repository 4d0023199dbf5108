// Package probe grades RPC endpoints for archive sync: reachability,
// historical log coverage and the widest accepted getLogs window.
package probe

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/archiver/internal/core/domain"
	"github.com/vietddude/archiver/internal/infra/chain"
)

// RangeSteps are the getLogs windows tried in order.
var RangeSteps = []uint64{500, 2_000, 5_000, 10_000, 50_000}

// ArchiveWindow is the block span after deployment that must hold logs.
const ArchiveWindow = 100

// ErrSilentDrop means the node answered getLogs with no logs where the
// registry is known to have emitted some.
var ErrSilentDrop = errors.New("0 logs at deploy block (silent drop)")

// Result grades one endpoint.
type Result struct {
	Endpoint  string
	Reachable bool
	Latency   time.Duration
	Archive   bool
	Logs      int
	MaxRange  uint64
	Err       error
}

// Probe runs the ping, archive and range checks against one client. Each
// check only runs when the previous one passed.
func Probe(ctx context.Context, c chain.Client, target domain.ChainTarget) Result {
	res := Result{Endpoint: c.Endpoint()}

	start := time.Now()
	if _, err := c.BlockNumber(ctx); err != nil {
		res.Err = err
		return res
	}
	res.Reachable = true
	res.Latency = time.Since(start)

	address := identityAddress(target)
	logs, err := c.GetLogs(ctx, address, target.DeploymentBlock, target.DeploymentBlock+ArchiveWindow)
	if err != nil {
		res.Err = err
		return res
	}
	if len(logs) == 0 {
		res.Err = ErrSilentDrop
		return res
	}
	res.Archive = true
	res.Logs = len(logs)

	for _, step := range RangeSteps {
		if _, err := c.GetLogs(ctx, address, target.DeploymentBlock, target.DeploymentBlock+step); err != nil {
			break
		}
		res.MaxRange = step
	}
	return res
}

func identityAddress(target domain.ChainTarget) string {
	for _, c := range target.Contracts {
		if c.Role == domain.RoleIdentity {
			return c.Address
		}
	}
	if len(target.Contracts) > 0 {
		return target.Contracts[0].Address
	}
	return ""
}

// ProbeAll checks every endpoint of a chain concurrently and returns the
// results ranked.
func ProbeAll(ctx context.Context, dial chain.Dialer, target domain.ChainTarget, endpoints []string, limit int) []Result {
	results := make([]Result, len(endpoints))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, limit))
	for i, ep := range endpoints {
		g.Go(func() error {
			c, err := dial(ctx, target, ep)
			if err != nil {
				results[i] = Result{Endpoint: ep, Err: err}
				return nil
			}
			defer func() {
				_ = c.Close()
			}()
			results[i] = Probe(ctx, c, target)
			return nil
		})
	}
	_ = g.Wait()

	Rank(results)
	return results
}

// Rank orders results archive first, then widest range, then lowest
// latency. Unreachable endpoints sort last.
func Rank(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Or(
			cmp.Compare(rank(a), rank(b)),
			cmp.Compare(b.MaxRange, a.MaxRange),
			cmp.Compare(a.Latency, b.Latency),
		)
	})
}

func rank(r Result) int {
	switch {
	case r.Archive:
		return 0
	case r.Reachable:
		return 1
	default:
		return 2
	}
}

// Usable returns the reachable endpoints in ranked order.
func Usable(results []Result) []string {
	var out []string
	for _, r := range results {
		if r.Reachable {
			out = append(out, r.Endpoint)
		}
	}
	return out
}
