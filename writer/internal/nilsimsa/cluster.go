package nilsimsa

import "sort"

// Item is one file's nilsimsa hash plus its deterministic tie-break key
// (spec section 4.6: "ties broken by original path to keep the output
// deterministic").
type Item struct {
	Hash     Hash
	Tiebreak string
}

// ClusterOrder greedily orders items so that adjacent entries have small
// hamming distance between their nilsimsa hashes, bounded by maxChildren
// (how many not-yet-placed candidates are considered at each step) and
// maxClusterSize (how large a chain can grow before starting a new one) to
// avoid super-linear behaviour on large corpora (spec section 4.6 /
// section 9's "max_children/max_cluster_size knobs are part of the
// algorithm, not optional"). Returns a permutation of indices into items.
//
// This is a simplified greedy nearest-neighbor chain rather than the
// original's cooperative work-stealing tree clustering (no clustering
// implementation survived retrieval in original_source, only the header
// declaring the two knobs); it preserves the two bounding knobs' intent —
// bounded candidate scans and bounded chain length — without replicating
// the concurrent tree structure.
func ClusterOrder(items []Item, maxChildren, maxClusterSize int) []int {
	if maxChildren <= 0 {
		maxChildren = 1
	}
	if maxClusterSize <= 0 {
		maxClusterSize = len(items)
	}

	remaining := make([]int, len(items))
	for i := range remaining {
		remaining[i] = i
	}
	sort.Slice(remaining, func(i, j int) bool {
		return items[remaining[i]].Tiebreak < items[remaining[j]].Tiebreak
	})

	var result []int
	for len(remaining) > 0 {
		clusterSize := 1
		cur := remaining[0]
		result = append(result, cur)
		remaining = remaining[1:]

		for clusterSize < maxClusterSize && len(remaining) > 0 {
			limit := maxChildren
			if limit > len(remaining) {
				limit = len(remaining)
			}
			bestPos, bestDist := -1, -1
			for i := 0; i < limit; i++ {
				d := Distance(items[cur].Hash, items[remaining[i]].Hash)
				if bestPos < 0 || d < bestDist ||
					(d == bestDist && items[remaining[i]].Tiebreak < items[remaining[bestPos]].Tiebreak) {
					bestPos, bestDist = i, d
				}
			}
			cur = remaining[bestPos]
			result = append(result, cur)
			remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
			clusterSize++
		}
	}
	return result
}
