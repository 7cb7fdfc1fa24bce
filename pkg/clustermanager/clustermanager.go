// Package clustermanager implements the Cluster Manager (spec §4.3): owns
// centroids, assigns vectors to the nearest cluster, and maintains
// per-cluster statistics, with an offline Lloyd's-algorithm recluster path.
//
// Grounded on platform/brain-core/internal/activities/clustering.go's
// greedy centroid assignment (cosineSim, avgVec, BuildClusters), generalized
// from that file's single-pass greedy clustering into the spec's full
// contract: k-means++ seeding, incremental updates, batch reassign, and a
// convergence-driven offline recluster.
package clustermanager

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/nucleus/vectorcore/pkg/eventstore"
	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// Config fixes a deployment's clustering parameters (spec §4.3
// "Configuration").
type Config struct {
	NumClusters                     int
	Dimension                       int
	DistanceMetric                  vectortypes.DistanceMetric
	EnableIncrementalCentroidUpdate bool
	PartitionKeyPrefix              string
	// UnitNormEpsilon bounds how far a vector's L2 norm may stray from 1.0
	// before Assign/Reassign/InitialiseCentroids refuse it with
	// NotUnitVector, when DistanceMetric is cosine (spec §9 "Incremental
	// centroid update vs re-normalisation": the core assumes pre-normalised
	// input and refuses vectors outside [1-epsilon, 1+epsilon]).
	UnitNormEpsilon float64
}

// DefaultConfig mirrors the defaults implied by spec §4.3.
func DefaultConfig(numClusters, dimension int) Config {
	return Config{
		NumClusters:                     numClusters,
		Dimension:                       dimension,
		DistanceMetric:                  vectortypes.MetricCosine,
		EnableIncrementalCentroidUpdate: true,
		PartitionKeyPrefix:              "partitions",
		UnitNormEpsilon:                 1e-3,
	}
}

// ClusterDistance is one element of NearestClusters' result.
type ClusterDistance struct {
	ClusterID string
	Distance  float64
}

// Manager is the Cluster Manager contract's sole implementation: a
// single-writer, in-memory centroid table with event-sourced assignment
// history.
type Manager struct {
	mu          sync.RWMutex
	cfg         Config
	centroids   map[string]*vectortypes.Centroid
	assignments map[string]vectortypes.ClusterAssignment
	busy        bool
	events      eventstore.Store
	rng         *rand.Rand
	clusterSeq  int
	now         func() time.Time

	// mutations counts every centroid-affecting operation. snapshotCache is
	// reused across calls to Snapshot as long as mutations hasn't moved,
	// the same "don't recompute unchanged clusters" reuse
	// centroidCacheEntry/loadCentroidCache/saveCentroidCache give
	// clustering.go's BuildClusters.
	mutations          int64
	snapshotCache      *vectortypes.ClusterIndex
	snapshotCacheAt    int64
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithRandSource overrides the k-means++ seeding RNG, for deterministic
// tests.
func WithRandSource(src rand.Source) Option {
	return func(m *Manager) { m.rng = rand.New(src) }
}

// WithClock overrides the wall-clock timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.now = clock }
}

// New constructs a Manager with no clusters yet; InitialiseCentroids or
// Recluster populates it.
func New(cfg Config, events eventstore.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		centroids:   make(map[string]*vectortypes.Centroid),
		assignments: make(map[string]vectortypes.ClusterAssignment),
		events:      events,
		rng:         rand.New(rand.NewSource(1)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) checkDimension(v vectortypes.Vector) error {
	if len(v) != m.cfg.Dimension {
		return vcerrors.New(vcerrors.CodeDimensionMismatch, false,
			fmt.Errorf("vector has dimension %d, expected %d", len(v), m.cfg.Dimension))
	}
	if m.cfg.DistanceMetric == vectortypes.MetricCosine {
		eps := m.cfg.UnitNormEpsilon
		if eps <= 0 {
			eps = 1e-3
		}
		if norm := vectortypes.Norm(v); norm < 1-eps || norm > 1+eps {
			return vcerrors.New(vcerrors.CodeNotUnitVector, false,
				fmt.Errorf("vector norm %.6f outside [1-%.g, 1+%.g]", norm, eps, eps))
		}
	}
	return nil
}

// InitialiseCentroids bootstraps k centroids via k-means++ seeding over
// seedVectors (spec §4.3 "pick one uniformly at random, then each next
// centroid with probability proportional to the squared distance to the
// nearest already-chosen centroid").
func (m *Manager) InitialiseCentroids(ctx context.Context, seedVectors []vectortypes.Vector) error {
	if len(seedVectors) < m.cfg.NumClusters {
		return vcerrors.New(vcerrors.CodeInsufficientSeeds, false,
			fmt.Errorf("need %d seed vectors, got %d", m.cfg.NumClusters, len(seedVectors)))
	}
	for _, v := range seedVectors {
		if err := m.checkDimension(v); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return vcerrors.New(vcerrors.CodeBusy, true, fmt.Errorf("cluster manager is reclustering"))
	}

	chosen := kmeansPlusPlusSeed(seedVectors, m.cfg.NumClusters, m.cfg.DistanceMetric, m.rng)
	now := m.now().UTC()
	m.centroids = make(map[string]*vectortypes.Centroid, len(chosen))
	for _, vec := range chosen {
		id := m.nextClusterID()
		m.centroids[id] = &vectortypes.Centroid{
			ClusterID:   id,
			Vector:      append(vectortypes.Vector(nil), vec...),
			Dimension:   m.cfg.Dimension,
			VectorCount: 0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	m.mutations++
	return nil
}

func (m *Manager) nextClusterID() string {
	m.clusterSeq++
	return fmt.Sprintf("%s-cluster-%04d", m.cfg.PartitionKeyPrefix, m.clusterSeq)
}

// kmeansPlusPlusSeed implements the weighted-sampling seeding strategy
// against an arbitrary distance metric.
func kmeansPlusPlusSeed(points []vectortypes.Vector, k int, metric vectortypes.DistanceMetric, rng *rand.Rand) []vectortypes.Vector {
	chosen := make([]vectortypes.Vector, 0, k)
	first := rng.Intn(len(points))
	chosen = append(chosen, points[first])

	minDistSq := make([]float64, len(points))
	for len(chosen) < k {
		var total float64
		for i, p := range points {
			d := vectortypes.Distance(metric, p, chosen[len(chosen)-1])
			d2 := d * d
			if len(chosen) == 1 || d2 < minDistSq[i] {
				minDistSq[i] = d2
			}
			total += minDistSq[i]
		}
		if total == 0 {
			// All remaining points coincide with chosen centroids; fall back
			// to uniform selection so k seeds are still produced (they may
			// repeat an already chosen point).
			chosen = append(chosen, points[rng.Intn(len(points))])
			continue
		}
		target := rng.Float64() * total
		var cumulative float64
		idx := len(points) - 1
		for i, d2 := range minDistSq {
			cumulative += d2
			if cumulative >= target {
				idx = i
				break
			}
		}
		chosen = append(chosen, points[idx])
	}
	return chosen
}

// NearestClusters ranks clusters by distance to queryVector, ascending,
// ties broken by clusterId lexicographic order (spec §4.3).
func (m *Manager) NearestClusters(queryVector vectortypes.Vector, n int) ([]ClusterDistance, error) {
	if err := m.checkDimension(queryVector); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClusterDistance, 0, len(m.centroids))
	for id, c := range m.centroids {
		out = append(out, ClusterDistance{ClusterID: id, Distance: vectortypes.Distance(m.cfg.DistanceMetric, queryVector, c.Vector)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ClusterID < out[j].ClusterID
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

func (m *Manager) nearestCentroidLocked(v vectortypes.Vector) (string, float64, error) {
	if len(m.centroids) == 0 {
		return "", 0, vcerrors.New(vcerrors.CodeUnknownCluster, false, fmt.Errorf("no clusters initialised"))
	}
	var bestID string
	bestDist := 0.0
	first := true
	ids := make([]string, 0, len(m.centroids))
	for id := range m.centroids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := vectortypes.Distance(m.cfg.DistanceMetric, v, m.centroids[id].Vector)
		if first || d < bestDist {
			bestDist = d
			bestID = id
			first = false
		}
	}
	return bestID, bestDist, nil
}

// Assign computes the nearest centroid for (id, vector), records the
// assignment, folds it into the centroid incrementally when enabled, and
// emits a ClusterAssignment event (spec §4.3, §2 "Data flow (write path)").
func (m *Manager) Assign(ctx context.Context, id string, vector vectortypes.Vector) (*vectortypes.ClusterAssignment, error) {
	if err := m.checkDimension(vector); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, vcerrors.New(vcerrors.CodeBusy, true, fmt.Errorf("cluster manager is reclustering"))
	}
	clusterID, dist, err := m.nearestCentroidLocked(vector)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	assignment := vectortypes.ClusterAssignment{
		VectorID:   id,
		ClusterID:  clusterID,
		Distance:   dist,
		AssignedAt: m.now().UTC(),
	}
	m.assignments[id] = assignment
	centroid := m.centroids[clusterID]
	if m.cfg.EnableIncrementalCentroidUpdate {
		centroid.VectorCount++
		centroid.Vector = vectortypes.AverageInPlace(centroid.Vector, vector, centroid.VectorCount)
		centroid.UpdatedAt = m.now().UTC()
	}
	m.mutations++
	m.mu.Unlock()

	if m.events != nil {
		if _, _, err := m.events.Append(ctx, "cluster:"+clusterID, "ClusterAssignment", assignment, nil, nil); err != nil {
			return nil, err
		}
	}
	return &assignment, nil
}

// AssignBatch assigns items sequentially in array order; centroid updates
// fold in order, matching single Assign semantics (spec §4.3).
func (m *Manager) AssignBatch(ctx context.Context, items map[string]vectortypes.Vector, order []string) ([]vectortypes.ClusterAssignment, error) {
	out := make([]vectortypes.ClusterAssignment, 0, len(order))
	for _, id := range order {
		a, err := m.Assign(ctx, id, items[id])
		if err != nil {
			return out, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// Reassign replaces id's existing assignment: the old centroid is
// decremented by the previous vector and the new one incremented (spec
// §4.3).
func (m *Manager) Reassign(ctx context.Context, id string, vector vectortypes.Vector, previousVector vectortypes.Vector) (*vectortypes.ClusterAssignment, error) {
	if err := m.checkDimension(vector); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, vcerrors.New(vcerrors.CodeBusy, true, fmt.Errorf("cluster manager is reclustering"))
	}
	old, existed := m.assignments[id]
	if existed {
		if oldCentroid, ok := m.centroids[old.ClusterID]; ok && m.cfg.EnableIncrementalCentroidUpdate && oldCentroid.VectorCount > 0 {
			oldCentroid.VectorCount--
			if oldCentroid.VectorCount == 0 {
				oldCentroid.Vector = make(vectortypes.Vector, m.cfg.Dimension)
			} else if previousVector != nil {
				oldCentroid.Vector = decrementAverage(oldCentroid.Vector, previousVector, oldCentroid.VectorCount+1)
			}
			oldCentroid.UpdatedAt = m.now().UTC()
		}
	}

	clusterID, dist, err := m.nearestCentroidLocked(vector)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	assignment := vectortypes.ClusterAssignment{
		VectorID:   id,
		ClusterID:  clusterID,
		Distance:   dist,
		AssignedAt: m.now().UTC(),
	}
	m.assignments[id] = assignment
	centroid := m.centroids[clusterID]
	if m.cfg.EnableIncrementalCentroidUpdate {
		centroid.VectorCount++
		centroid.Vector = vectortypes.AverageInPlace(centroid.Vector, vector, centroid.VectorCount)
		centroid.UpdatedAt = m.now().UTC()
	}
	m.mutations++
	m.mu.Unlock()

	if m.events != nil {
		if _, _, err := m.events.Append(ctx, "cluster:"+clusterID, "ClusterReassignment", assignment, nil, nil); err != nil {
			return nil, err
		}
	}
	return &assignment, nil
}

// decrementAverage removes v from a running mean that currently represents
// prevCount vectors, returning the mean of prevCount-1.
func decrementAverage(acc vectortypes.Vector, v vectortypes.Vector, prevCount int64) vectortypes.Vector {
	out := make(vectortypes.Vector, len(acc))
	n := float64(prevCount)
	for i := range acc {
		out[i] = float32((float64(acc[i])*n - float64(v[i])) / (n - 1))
	}
	return out
}

// Assignment returns vectorID's current cluster assignment, if any (spec
// §3 "exactly one assignment per vector at any point in time").
func (m *Manager) Assignment(vectorID string) (*vectortypes.ClusterAssignment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[vectorID]
	if !ok {
		return nil, false
	}
	return &a, true
}

// Stats recomputes a per-cluster summary from current assignments (spec
// §4.3 "stats(clusterId) → ClusterStats").
func (m *Manager) Stats(clusterID string) (*vectortypes.ClusterStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.centroids[clusterID]; !ok {
		return nil, vcerrors.New(vcerrors.CodeUnknownCluster, false, fmt.Errorf("unknown cluster %q", clusterID))
	}

	stats := &vectortypes.ClusterStats{ClusterID: clusterID}
	var sum float64
	first := true
	for _, a := range m.assignments {
		if a.ClusterID != clusterID {
			continue
		}
		stats.VectorCount++
		sum += a.Distance
		if first || a.Distance < stats.MinDistance {
			stats.MinDistance = a.Distance
		}
		if first || a.Distance > stats.MaxDistance {
			stats.MaxDistance = a.Distance
		}
		first = false
	}
	if stats.VectorCount > 0 {
		stats.AverageDistance = sum / float64(stats.VectorCount)
	}
	stats.LastUpdated = m.now().UTC()
	return stats, nil
}

// Snapshot returns the ClusterIndex the Cold Search Engine routes against
// (spec §4.3, §3 "ClusterIndex").
func (m *Manager) Snapshot() *vectortypes.ClusterIndex {
	m.mu.RLock()
	if m.snapshotCache != nil && m.snapshotCacheAt == m.mutations {
		cached := m.snapshotCache
		m.mu.RUnlock()
		return cached
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotCache != nil && m.snapshotCacheAt == m.mutations {
		return m.snapshotCache
	}

	ids := make([]string, 0, len(m.centroids))
	for id := range m.centroids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var total int64
	infos := make([]vectortypes.ClusterInfo, 0, len(ids))
	for _, id := range ids {
		c := m.centroids[id]
		total += c.VectorCount
		infos = append(infos, vectortypes.ClusterInfo{
			ClusterID:    id,
			Centroid:     append(vectortypes.Vector(nil), c.Vector...),
			VectorCount:  c.VectorCount,
			PartitionKey: fmt.Sprintf("%s/%s.parquet", m.cfg.PartitionKeyPrefix, id),
		})
	}
	snap := &vectortypes.ClusterIndex{
		Version:      m.now().UTC().UnixNano(),
		ClusterCount: len(infos),
		TotalVectors: total,
		Clusters:     infos,
	}
	m.snapshotCache = snap
	m.snapshotCacheAt = m.mutations
	return snap
}

// Busy reports whether a recluster is in flight.
func (m *Manager) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.busy
}
