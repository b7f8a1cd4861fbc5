package handler

import (
	"context"

	"submerge/internal/merge"
	"submerge/internal/store"
	"submerge/internal/subserve"
)

// collectSources assembles the merge input: each enabled
// subscription's cached nodes plus the enabled custom nodes under the
// custom source id. The returned map resolves source ids back to
// their subscriptions for traffic reporting.
func collectSources(ctx context.Context, st *store.Store) ([]merge.Source, map[string]store.Subscription, error) {
	subs, err := st.ListSubscriptions(ctx)
	if err != nil {
		return nil, nil, err
	}

	var sources []merge.Source
	byID := make(map[string]store.Subscription, len(subs))
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		nodes, err := st.SubscriptionNodes(ctx, sub.ID)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, merge.Source{ID: sub.ID, Nodes: nodes})
		byID[sub.ID] = sub
	}

	custom, err := st.EnabledCustomNodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(custom) > 0 {
		sources = append(sources, merge.Source{ID: merge.CustomSourceID, Nodes: custom})
	}

	return sources, byID, nil
}

// sourceTraffic lists the usage rows for the sources that survived
// filtering, in source order.
func sourceTraffic(sources []merge.Source, byID map[string]store.Subscription) []subserve.SourceTraffic {
	var out []subserve.SourceTraffic
	for _, src := range sources {
		sub, ok := byID[src.ID]
		if !ok {
			continue
		}
		out = append(out, subserve.SourceTraffic{
			Name:     sub.Name,
			Upload:   sub.Upload,
			Download: sub.Download,
			Total:    sub.Total,
			Expire:   sub.Expire,
		})
	}
	return out
}
