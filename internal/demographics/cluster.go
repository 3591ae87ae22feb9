package demographics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/marketmap/internal/model"
)

const (
	maxClusters     = 5
	zipsPerCluster  = 10
	maxKMeansRounds = 100
	clusterSamples  = 5
)

// Cluster is one group of demographically similar ZIPs.
type Cluster struct {
	ID            int      `json:"cluster_id"`
	Count         int      `json:"zip_codes_count"`
	AvgPopulation int64    `json:"avg_population"`
	Demographics  Summary  `json:"demographics"`
	SampleZips    []string `json:"sample_zip_codes"`
}

// ClustersResponse lists the clusters of a cohort.
type ClustersResponse struct {
	TotalClusters int       `json:"total_clusters"`
	Clusters      []Cluster `json:"clusters"`
	TotalZipCodes int       `json:"total_zip_codes"`
}

// Clusters groups the rows matching c by standardised median age, median
// income and college share using k-means. k is one cluster per ten ZIPs,
// between 2 and 5, and never more than the number of ZIPs. Results are
// deterministic for a given input order.
func Clusters(rows []model.Demographics, c Criteria) (ClustersResponse, error) {
	cohort := Select(rows, c)
	if len(cohort) == 0 {
		return ClustersResponse{}, ErrNoMatch
	}
	k := min(maxClusters, len(cohort)/zipsPerCluster)
	k = min(max(k, 2), len(cohort))

	labels := kmeans(standardize(features(cohort)), k)

	members := make([][]model.Demographics, k)
	for i, l := range labels {
		members[l] = append(members[l], cohort[i])
	}
	resp := ClustersResponse{TotalClusters: k, TotalZipCodes: len(cohort), Clusters: make([]Cluster, k)}
	for id, m := range members {
		cl := Cluster{ID: id, Count: len(m), Demographics: Summarize(m), SampleZips: []string{}}
		if len(m) > 0 {
			var pop int64
			for _, d := range m {
				pop += d.Population
			}
			cl.AvgPopulation = pop / int64(len(m))
		}
		for _, d := range head(m, clusterSamples) {
			cl.SampleZips = append(cl.SampleZips, d.ZipCode)
		}
		resp.Clusters[id] = cl
	}
	return resp, nil
}

// features returns one column per clustering dimension.
func features(rows []model.Demographics) [][]float64 {
	cols := [][]float64{make([]float64, len(rows)), make([]float64, len(rows)), make([]float64, len(rows))}
	for i, d := range rows {
		cols[0][i] = d.MedianAge
		cols[1][i] = d.MedianIncome
		cols[2][i] = d.Share(collegeColumn)
	}
	return cols
}

// standardize rescales each column to zero mean and unit deviation and
// returns the rows as points. Constant columns become zero.
func standardize(cols [][]float64) [][]float64 {
	n := len(cols[0])
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, len(cols))
	}
	for j, col := range cols {
		mean, sd := stat.MeanStdDev(col, nil)
		for i, v := range col {
			if sd > 0 && !math.IsNaN(sd) {
				points[i][j] = (v - mean) / sd
			}
		}
	}
	return points
}

// kmeans runs Lloyd's algorithm seeded by farthest-first traversal from
// the point nearest the origin (the standardised mean). It returns a
// cluster index per point.
func kmeans(points [][]float64, k int) []int {
	centroids := seed(points, k)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for range maxKMeansRounds {
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if best != labels[i] {
				labels[i], changed = best, true
			}
		}
		if !changed {
			break
		}
		for c := range centroids {
			sum := make([]float64, len(centroids[c]))
			n := 0
			for i, l := range labels {
				if l == c {
					floats.Add(sum, points[i])
					n++
				}
			}
			// An empty cluster keeps its previous centroid.
			if n > 0 {
				floats.Scale(1/float64(n), sum)
				centroids[c] = sum
			}
		}
	}
	return labels
}

func seed(points [][]float64, k int) [][]float64 {
	origin := make([]float64, len(points[0]))
	first := nearest(origin, points)

	centroids := [][]float64{clone(points[first])}
	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = floats.Distance(p, centroids[0], 2)
	}
	for len(centroids) < k {
		far := floats.MaxIdx(dist)
		c := clone(points[far])
		centroids = append(centroids, c)
		for i, p := range points {
			dist[i] = math.Min(dist[i], floats.Distance(p, c, 2))
		}
	}
	return centroids
}

// nearest returns the index of the candidate closest to p, lowest index on
// ties.
func nearest(p []float64, candidates [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range candidates {
		if d := floats.Distance(p, c, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
