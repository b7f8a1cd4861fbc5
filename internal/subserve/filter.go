package subserve

import (
	"submerge/internal/merge"
	"submerge/internal/store"
)

// FilterSources narrows the merge input to what a sub-account may
// receive. Sources without an allocation entry disappear entirely; a
// wildcard entry passes the whole source; explicit entries pass only
// the named nodes that still exist. Names that no longer resolve are
// dropped silently.
func FilterSources(sources []merge.Source, alloc store.Allocation) []merge.Source {
	var out []merge.Source
	for _, src := range sources {
		if _, ok := alloc[src.ID]; !ok {
			continue
		}
		if alloc.AllowsAll(src.ID) {
			out = append(out, src)
			continue
		}
		filtered := merge.Source{ID: src.ID}
		for _, n := range src.Nodes {
			if alloc.Allows(src.ID, n.Name) {
				filtered.Nodes = append(filtered.Nodes, n)
			}
		}
		out = append(out, filtered)
	}
	return out
}
