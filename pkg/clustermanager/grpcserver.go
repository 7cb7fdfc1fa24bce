package clustermanager

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nucleus/vectorcore/pkg/clustermanager/clustermanagerpb"
	"github.com/nucleus/vectorcore/pkg/vcerrors"
	"github.com/nucleus/vectorcore/pkg/vectortypes"
)

// GRPCServer adapts a Manager to clustermanagerpb.ClusterManagerServiceServer,
// the same adapter shape platform/store-core/pkg/vectorstore/service.go uses
// to expose its Store over vectorpb.
type GRPCServer struct {
	clustermanagerpb.UnimplementedClusterManagerServiceServer
	Manager *Manager
}

// NewGRPCServer wraps mgr for registration against a *grpc.Server.
func NewGRPCServer(mgr *Manager) *GRPCServer {
	return &GRPCServer{Manager: mgr}
}

func toFloat32(v []float32) vectortypes.Vector { return vectortypes.Vector(v) }

func (s *GRPCServer) Assign(ctx context.Context, req *clustermanagerpb.AssignRequest) (*clustermanagerpb.AssignResponse, error) {
	assignment, err := s.Manager.Assign(ctx, req.GetId(), toFloat32(req.GetVector()))
	if err != nil {
		return nil, grpcError(err)
	}
	return &clustermanagerpb.AssignResponse{
		ClusterId:    assignment.ClusterID,
		Distance:     assignment.Distance,
		AssignedAtMs: assignment.AssignedAt.UnixMilli(),
	}, nil
}

func (s *GRPCServer) NearestClusters(ctx context.Context, req *clustermanagerpb.NearestClustersRequest) (*clustermanagerpb.NearestClustersResponse, error) {
	ranked, err := s.Manager.NearestClusters(toFloat32(req.GetQueryVector()), int(req.GetN()))
	if err != nil {
		return nil, grpcError(err)
	}
	out := make([]*clustermanagerpb.ClusterDistance, len(ranked))
	for i, r := range ranked {
		out[i] = &clustermanagerpb.ClusterDistance{ClusterId: r.ClusterID, Distance: r.Distance}
	}
	return &clustermanagerpb.NearestClustersResponse{Clusters: out}, nil
}

func (s *GRPCServer) Snapshot(ctx context.Context, req *clustermanagerpb.SnapshotRequest) (*clustermanagerpb.SnapshotResponse, error) {
	snap := s.Manager.Snapshot()
	clusters := make([]*clustermanagerpb.ClusterInfo, len(snap.Clusters))
	for i, c := range snap.Clusters {
		clusters[i] = &clustermanagerpb.ClusterInfo{
			ClusterId:    c.ClusterID,
			Centroid:     []float32(c.Centroid),
			VectorCount:  c.VectorCount,
			PartitionKey: c.PartitionKey,
		}
	}
	return &clustermanagerpb.SnapshotResponse{
		Version:      snap.Version,
		ClusterCount: int32(snap.ClusterCount),
		TotalVectors: snap.TotalVectors,
		Clusters:     clusters,
	}, nil
}

// grpcError maps the core's vcerrors taxonomy onto gRPC status codes, the
// same classification responsibility platform/store-core/cmd/store-server's
// handlers perform inline per-call.
func grpcError(err error) error {
	var coded *vcerrors.Error
	if e, ok := err.(*vcerrors.Error); ok {
		coded = e
	} else {
		return status.Error(codes.Internal, err.Error())
	}
	switch coded.Code {
	case vcerrors.CodeDimensionMismatch, vcerrors.CodeInsufficientSeeds, vcerrors.CodeUnknownCluster:
		return status.Error(codes.InvalidArgument, coded.Error())
	case vcerrors.CodeBusy:
		return status.Error(codes.Unavailable, coded.Error())
	default:
		return status.Error(codes.Internal, coded.Error())
	}
}
