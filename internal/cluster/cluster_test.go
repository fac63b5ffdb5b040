package cluster

// Tests for single-link similarity clustering.
// Covers: partition coverage, determinism, singleton handling, chained
// merging, and validation errors.

import (
	"reflect"
	"strings"
	"testing"
)

func TestBySimilarityBasic(t *testing.T) {
	items := []Item{
		{ID: "t1", Vector: []float64{1, 0, 0}},
		{ID: "t2", Vector: []float64{0, 1, 0}},
		{ID: "t3", Vector: []float64{0, 0, 1}},
		{ID: "t4", Vector: []float64{0.9, 0.1, 0}},
	}

	result, err := BySimilarity(items, 0.5)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}

	if result.ClusterCount != 3 {
		t.Errorf("Expected 3 clusters, got %d", result.ClusterCount)
	}
	if result.TaskCount != 4 {
		t.Errorf("Expected task_count 4, got %d", result.TaskCount)
	}

	// t1 and t4 are similar (cosine ~0.99) and must share a cluster
	found := false
	for _, c := range result.Clusters {
		has1, has4 := false, false
		for _, id := range c {
			if id == "t1" {
				has1 = true
			}
			if id == "t4" {
				has4 = true
			}
		}
		if has1 != has4 {
			t.Errorf("t1 and t4 split across clusters: %v", result.Clusters)
		}
		if has1 && has4 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected t1 and t4 in the same cluster, got %v", result.Clusters)
	}
}

func TestBySimilarityCoverage(t *testing.T) {
	items := []Item{
		{ID: "a", Vector: []float64{1, 0}},
		{ID: "b", Vector: []float64{0.95, 0.05}},
		{ID: "c", Vector: []float64{0, 1}},
		{ID: "d", Vector: []float64{-1, 0}},
		{ID: "e", Vector: []float64{0.5, 0.5}},
	}

	result, err := BySimilarity(items, 0.8)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}

	seen := make(map[string]int)
	for _, c := range result.Clusters {
		for _, id := range c {
			seen[id]++
		}
	}
	if len(seen) != len(items) {
		t.Errorf("Partition covers %d ids, want %d", len(seen), len(items))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("Id %s appears %d times, want exactly 1", id, n)
		}
	}
}

func TestBySimilarityDeterminism(t *testing.T) {
	items := []Item{
		{ID: "z", Vector: []float64{0, 0, 1}},
		{ID: "a", Vector: []float64{1, 0, 0}},
		{ID: "m", Vector: []float64{0.9, 0.1, 0}},
		{ID: "b", Vector: []float64{0, 1, 0}},
	}
	reversed := []Item{items[3], items[2], items[1], items[0]}

	r1, err := BySimilarity(items, 0.5)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}
	r2, err := BySimilarity(reversed, 0.5)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}

	if !reflect.DeepEqual(r1.Clusters, r2.Clusters) {
		t.Errorf("Partition depends on input order:\n%v\nvs\n%v", r1.Clusters, r2.Clusters)
	}
}

func TestBySimilarityChainedMerge(t *testing.T) {
	// a~b and b~c but a and c are below threshold directly; single-link
	// still puts all three in one cluster.
	items := []Item{
		{ID: "a", Vector: []float64{1, 0}},
		{ID: "b", Vector: []float64{0.8, 0.6}},
		{ID: "c", Vector: []float64{0.3, 0.95}},
	}

	result, err := BySimilarity(items, 0.75)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}
	if result.ClusterCount != 1 {
		t.Errorf("Expected 1 chained cluster, got %d: %v", result.ClusterCount, result.Clusters)
	}
}

func TestBySimilaritySingletons(t *testing.T) {
	items := []Item{
		{ID: "only", Vector: []float64{1, 0}},
	}
	result, err := BySimilarity(items, 0.9)
	if err != nil {
		t.Fatalf("BySimilarity failed: %v", err)
	}
	if result.ClusterCount != 1 || len(result.Clusters[0]) != 1 {
		t.Errorf("Expected a single singleton cluster, got %v", result.Clusters)
	}
}

func TestBySimilarityEmpty(t *testing.T) {
	result, err := BySimilarity(nil, 0.5)
	if err != nil {
		t.Fatalf("BySimilarity failed on empty input: %v", err)
	}
	if result.ClusterCount != 0 || result.TaskCount != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestBySimilarityMissingVector(t *testing.T) {
	items := []Item{
		{ID: "ok", Vector: []float64{1, 0}},
		{ID: "broken", Vector: nil},
	}
	_, err := BySimilarity(items, 0.5)
	if err == nil {
		t.Fatal("Expected error for missing embedding")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("Error should name the offending id: %v", err)
	}
}

func TestBySimilarityDimensionMismatch(t *testing.T) {
	items := []Item{
		{ID: "a", Vector: []float64{1, 0, 0}},
		{ID: "b", Vector: []float64{1, 0}},
	}
	_, err := BySimilarity(items, 0.5)
	if err == nil {
		t.Fatal("Expected error for dimension mismatch")
	}
}
