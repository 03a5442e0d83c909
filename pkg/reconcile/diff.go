package reconcile

import "sort"

// node is anything the tree holds. New nodes were created locally and are
// not yet reported by the cluster, so they survive a diff.
type node interface {
	IsNew() bool
}

type plan struct {
	keep   []string
	create []string
	remove []string
}

// diff compares the reported keys with the existing nodes.
func diff[N node](want []string, have map[string]N) plan {
	var p plan
	seen := make(map[string]bool, len(want))
	for _, key := range want {
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, ok := have[key]; ok {
			p.keep = append(p.keep, key)
		} else {
			p.create = append(p.create, key)
		}
	}
	for key, n := range have {
		if !seen[key] && !n.IsNew() {
			p.remove = append(p.remove, key)
		}
	}
	sort.Slice(p.remove, func(i, j int) bool { return lessFold(p.remove[i], p.remove[j]) })
	return p
}
