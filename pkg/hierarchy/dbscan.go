package hierarchy

import (
	"math"

	"github.com/memenex/memengine/pkg/record"
)

// cluster is a group of record indexes discovered by DBSCAN; noise points
// are omitted from the returned slice.
type cluster struct {
	members []int
}

// dbscan runs the classic density-based clustering algorithm over
// records' embeddings using cosine distance, grouping points with at
// least minPts neighbors within epsilon of each other (core points) and
// everything density-reachable from them. Points that are neither a core
// point nor reachable from one are noise and excluded from the result.
//
// This is a from-scratch implementation: the original_source DBSCAN
// clusterer this is grounded on (agent-mem-intelligence/src/clustering/dbscan.rs)
// is an unimplemented stub whose methods all return empty results, so
// there is no original algorithm to port — only the clusterer's shape
// (cluster_memories over a point set, with epsilon/minPts parameters) to
// follow. See DESIGN.md.
func dbscan(points [][]float32, epsilon float64, minPts int) []cluster {
	n := len(points)
	if n == 0 {
		return nil
	}

	const (
		unvisited = 0
		visited   = 1
	)
	state := make([]int, n)
	clusterID := make([]int, n) // 0 = unassigned/noise, >0 = cluster index
	nextCluster := 0

	neighborsOf := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if cosineDistance(points[i], points[j]) <= epsilon {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if state[i] != unvisited {
			continue
		}
		state[i] = visited
		neighbors := neighborsOf(i)
		if len(neighbors)+1 < minPts {
			continue // provisional noise; may still be claimed by another core point's expansion
		}

		nextCluster++
		clusterID[i] = nextCluster

		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if state[j] == unvisited {
				state[j] = visited
				jNeighbors := neighborsOf(j)
				if len(jNeighbors)+1 >= minPts {
					queue = append(queue, jNeighbors...)
				}
			}
			if clusterID[j] == 0 {
				clusterID[j] = nextCluster
			}
		}
	}

	clusters := make(map[int][]int)
	for i, c := range clusterID {
		if c == 0 {
			continue
		}
		clusters[c] = append(clusters[c], i)
	}
	out := make([]cluster, 0, len(clusters))
	for _, members := range clusters {
		out = append(out, cluster{members: members})
	}
	return out
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim
}

// meanPairwiseDistance computes the mean cosine distance over all point
// pairs, used to derive DBSCAN's epsilon from the data itself rather than
// a fixed constant, per spec section 4.E ("epsilon derived from
// intra-scope mean pairwise distance").
func meanPairwiseDistance(points [][]float32) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += cosineDistance(points[i], points[j])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// embeddingsOf returns each record's embedding in input order, empty ones
// included, so result indexes line up with records.
func embeddingsOf(records []*record.Record) [][]float32 {
	out := make([][]float32, 0, len(records))
	for _, r := range records {
		out = append(out, r.Embedding)
	}
	return out
}
