package merge

import (
	"fmt"

	"submerge/internal/node"
)

// CustomSourceID is the sentinel used in the persisted source order for the
// hand-added node group, alongside subscription ids.
const CustomSourceID = "custom"

// Source is one contributor to the merged node list: a subscription's cached
// nodes or the custom node group.
type Source struct {
	ID    string
	Nodes []node.Node
}

// ResolveOrder arranges sources according to the persisted order list.
// Sources named in the order come first, in that order; ids in the order
// that match no source are ignored; sources missing from the order are
// appended in their given (creation) order.
func ResolveOrder(sources []Source, order []string) []Source {
	byID := make(map[string]int, len(sources))
	for i, src := range sources {
		byID[src.ID] = i
	}

	placed := make(map[string]bool, len(sources))
	resolved := make([]Source, 0, len(sources))
	for _, id := range order {
		idx, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		resolved = append(resolved, sources[idx])
		placed[id] = true
	}
	for _, src := range sources {
		if !placed[src.ID] {
			resolved = append(resolved, src)
		}
	}
	return resolved
}

// Nodes flattens the ordered sources into one list, renaming duplicate node
// names with a numeric suffix so every name stays unique.
func Nodes(sources []Source, order []string) []node.Node {
	var merged []node.Node
	seen := make(map[string]bool)

	for _, src := range ResolveOrder(sources, order) {
		for _, n := range src.Nodes {
			n.Name = uniqueName(seen, n.Name)
			seen[n.Name] = true
			merged = append(merged, n)
		}
	}
	return merged
}

func uniqueName(seen map[string]bool, name string) string {
	if !seen[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s %d", name, i)
		if !seen[candidate] {
			return candidate
		}
	}
}
