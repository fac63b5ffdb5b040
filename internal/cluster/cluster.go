// Package cluster groups tasks by embedding similarity using
// single-link agglomerative merging: two items share a cluster when any
// chain of pairwise cosine similarities at or above the threshold links
// them.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Item is a task id paired with its embedding vector
type Item struct {
	ID     string
	Vector []float64
}

// Result holds the computed partition of the input set
type Result struct {
	Clusters     [][]string `json:"clusters"`
	TaskCount    int        `json:"task_count"`
	ClusterCount int        `json:"cluster_count"`
}

// BySimilarity partitions items into clusters at the given cosine
// similarity threshold. Every input id appears in exactly one cluster;
// items with no sufficiently similar neighbor form singletons. The final
// partition is deterministic for a given input.
func BySimilarity(items []Item, threshold float64) (*Result, error) {
	if err := validate(items); err != nil {
		return nil, err
	}

	// Sort a copy by id so merge order (and cluster ordering) is stable
	// regardless of input order.
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	// Union-find over pairwise similarities. Pairwise is O(n²) but the
	// task sets here are hundreds of items at most.
	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if cosine(sorted[i].Vector, sorted[j].Vector) >= threshold {
				union(i, j)
			}
		}
	}

	// Collect members per root, keyed by root index for stable ordering.
	groups := make(map[int][]string)
	var roots []int
	for i := range sorted {
		r := find(i)
		if _, seen := groups[r]; !seen {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], sorted[i].ID)
	}
	sort.Ints(roots)

	clusters := make([][]string, 0, len(roots))
	for _, r := range roots {
		members := groups[r]
		sort.Strings(members)
		clusters = append(clusters, members)
	}

	return &Result{
		Clusters:     clusters,
		TaskCount:    len(items),
		ClusterCount: len(clusters),
	}, nil
}

// validate rejects missing vectors and mismatched dimensionality before
// any clustering happens. The clusterer never silently drops tasks.
func validate(items []Item) error {
	var missing []string
	dim := 0
	for _, it := range items {
		if len(it.Vector) == 0 {
			missing = append(missing, it.ID)
			continue
		}
		if dim == 0 {
			dim = len(it.Vector)
		} else if len(it.Vector) != dim {
			return fmt.Errorf("embedding dimension mismatch: %s has %d dims, expected %d",
				it.ID, len(it.Vector), dim)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing embeddings for one or more task IDs: %s", strings.Join(missing, ", "))
	}
	return nil
}

// cosine computes cosine similarity between two equal-length vectors
func cosine(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	normA := math.Sqrt(floats.Dot(a, a))
	normB := math.Sqrt(floats.Dot(b, b))
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}
