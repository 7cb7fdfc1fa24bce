package clustermanager

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// ReclusterOptions tunes Lloyd's algorithm convergence (spec §4.3
// "Re-clustering").
type ReclusterOptions struct {
	MaxIterations int
	Tolerance     float64
}

// DefaultReclusterOptions mirrors the spec defaults: 25 iterations, 1e-4
// mean-centroid-movement tolerance.
func DefaultReclusterOptions() ReclusterOptions {
	return ReclusterOptions{MaxIterations: 25, Tolerance: 1e-4}
}

// Recluster runs Lloyd's algorithm over allVectors to convergence or
// maxIterations, then fully reassigns every known vector to the new
// centroid set (spec §4.3). While running, Assign/Reassign are refused with
// Busy.
func (m *Manager) Recluster(ctx context.Context, allVectors map[string]vectortypes.Vector, opts ReclusterOptions) error {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 25
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-4
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return vcerrors.New(vcerrors.CodeBusy, true, fmt.Errorf("recluster already in progress"))
	}
	m.busy = true
	numClusters := m.cfg.NumClusters
	metric := m.cfg.DistanceMetric
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	ids := make([]string, 0, len(allVectors))
	for id := range allVectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	points := make([]vectortypes.Vector, len(ids))
	for i, id := range ids {
		points[i] = allVectors[id]
	}
	if len(points) == 0 {
		return nil
	}

	centroids := kmeansPlusPlusSeed(points, numClusters, metric, m.rng)
	assignment := make([]int, len(points))

	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for k, c := range centroids {
				d := vectortypes.Distance(metric, p, c)
				if d < bestDist {
					bestDist = d
					best = k
				}
			}
			assignment[i] = best
		}

		newCentroids := make([]vectortypes.Vector, numClusters)
		counts := make([]int64, numClusters)
		for i, p := range points {
			k := assignment[i]
			counts[k]++
			newCentroids[k] = vectortypes.AverageInPlace(newCentroids[k], p, counts[k])
		}
		for k := range newCentroids {
			if counts[k] == 0 {
				newCentroids[k] = centroids[k] // keep stranded centroid in place
			}
		}

		var movement float64
		for k := range centroids {
			movement += vectortypes.EuclideanDistance(centroids[k], newCentroids[k])
		}
		meanMovement := movement / float64(numClusters)
		centroids = newCentroids
		if meanMovement < opts.Tolerance {
			break
		}
	}

	m.mu.Lock()
	now := m.now().UTC()
	newCentroidMap := make(map[string]*vectortypes.Centroid, numClusters)
	clusterIDs := make([]string, numClusters)
	for k := 0; k < numClusters; k++ {
		id := fmt.Sprintf("%s-cluster-%04d", m.cfg.PartitionKeyPrefix, k+1)
		clusterIDs[k] = id
		newCentroidMap[id] = &vectortypes.Centroid{
			ClusterID: id,
			Vector:    centroids[k],
			Dimension: m.cfg.Dimension,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	newAssignments := make(map[string]vectortypes.ClusterAssignment, len(ids))
	for i, id := range ids {
		k := assignment[i]
		cid := clusterIDs[k]
		d := vectortypes.Distance(metric, points[i], centroids[k])
		newCentroidMap[cid].VectorCount++
		newAssignments[id] = vectortypes.ClusterAssignment{
			VectorID:   id,
			ClusterID:  cid,
			Distance:   d,
			AssignedAt: now,
		}
	}
	m.centroids = newCentroidMap
	m.assignments = newAssignments
	m.clusterSeq = numClusters
	m.mutations++
	m.mu.Unlock()

	if m.events != nil {
		for id, a := range newAssignments {
			if _, _, err := m.events.Append(ctx, "cluster:"+a.ClusterID, "ClusterReassignment", map[string]any{"vectorId": id, "clusterId": a.ClusterID}, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
