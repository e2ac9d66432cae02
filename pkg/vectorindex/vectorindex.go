// Package vectorindex implements the Vector Index component (B): an
// in-process nearest-neighbor index over fixed-dimension float32 vectors,
// with a filter predicate applied during traversal rather than after the
// fact. Two algorithms are provided: HNSW (the default, grounded on the
// graph index idiom in liliang-cn-sqvect's pkg/index) and Flat, a
// brute-force index useful for small collections or as a correctness
// oracle in tests.
package vectorindex

import (
	"math"

	"github.com/memenex/memengine/pkg/record"
)

// Metric selects the distance function used for both graph construction
// and search.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// Hit is one search result: a record id and its similarity score under
// the index's configured metric. Higher is always more similar,
// regardless of metric.
type Hit struct {
	ID    string
	Score float64
}

// Index is the contract both HNSW and Flat satisfy.
type Index interface {
	// Add inserts or replaces the vector for id. rec is retained only for
	// filter evaluation during Search; callers must not mutate it
	// concurrently with an in-flight Search.
	Add(id string, vec []float32, rec *record.Record) error
	// Delete tombstones id. Returns false if id was not present.
	Delete(id string) bool
	// Search returns up to k hits passing filter, ordered by descending
	// score, ties broken by ascending id.
	Search(query []float32, k int, filter record.Predicate) ([]Hit, error)
	// Len reports the number of live (non-tombstoned) entries.
	Len() int
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(a []float32) float64 {
	return math.Sqrt(dot(a, a))
}

func cosineSimilarity(a, b []float32) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// similarity returns a score where higher means more similar, for any of
// the three supported metrics.
func similarity(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricEuclidean:
		return 1.0 / (1.0 + euclideanDistance(a, b))
	case MetricDot:
		return dot(a, b)
	default:
		return cosineSimilarity(a, b)
	}
}

// distance is the corresponding "smaller is closer" form used internally
// by graph traversal, which wants a single consistent ordering direction
// regardless of metric.
func distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricEuclidean:
		return euclideanDistance(a, b)
	case MetricDot:
		return -dot(a, b)
	default:
		return 1.0 - cosineSimilarity(a, b)
	}
}
