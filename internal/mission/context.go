package mission

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/quiet-coder-io/domainos/internal/domainstatus"
	"github.com/quiet-coder-io/domainos/internal/portfolio"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// DefaultPortfolioBriefingContext assembles the fallback context for
// missions that don't define their own BuildContext: the cross-domain
// health snapshot plus each domain's individual status snapshot, gathered
// concurrently since the per-domain builds are independent of one another.
func DefaultPortfolioBriefingContext(st *store.Store) func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error) {
	return func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error) {
		now := timeNow().UTC()

		portSnap, err := portfolio.NewBuilder(st).Build(ctx, now)
		if err != nil {
			return nil, err
		}

		domains, err := st.ListDomains(ctx)
		if err != nil {
			return nil, err
		}

		statusBuilder := domainstatus.NewBuilder(st)
		statuses := make([]domainstatus.Snapshot, len(domains))

		g, gctx := errgroup.WithContext(ctx)
		for i, d := range domains {
			i, d := i, d
			g.Go(func() error {
				snap, err := statusBuilder.Build(gctx, d.ID, now, nil)
				if err != nil {
					return err
				}
				statuses[i] = snap
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		return map[string]any{
			"portfolio":      portSnap,
			"domainStatuses": statuses,
			"generatedAt":    now,
		}, nil
	}
}
