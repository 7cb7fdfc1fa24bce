// Code generated manually for bootstrap. Replace with protoc-generated code
// for production.
//
// Package clustermanagerpb is the Cluster Manager's gRPC contract: snapshot
// the cluster index and assign a vector, the two calls the Cold Search
// Engine's router and the ingest write-path need across a process boundary.
// Hand-rolled in the same style as
// platform/ucl-core/pkg/clusterpb/cluster.pb.go (itself marked "Code
// generated manually for bootstrap"), generalized from that file's
// tenant/project BuildClusters/ListClusters pair to the spec's
// assign/nearestClusters/snapshot contract (spec §4.3).
package clustermanagerpb

import (
	context "context"

	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"
)

// Compile-time assertions.
var _ context.Context
var _ grpc.ClientConnInterface

const _ = grpc.SupportPackageIsVersion7

// AssignRequest carries one (id, vector) pair to assign to its nearest
// cluster (spec §4.3 "assign(id, vector)").
type AssignRequest struct {
	Id     string    `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Vector []float32 `protobuf:"fixed32,2,rep,packed,name=vector,proto3" json:"vector,omitempty"`
}

// AssignResponse is the resulting ClusterAssignment.
type AssignResponse struct {
	ClusterId    string `protobuf:"bytes,1,opt,name=cluster_id,json=clusterId,proto3" json:"cluster_id,omitempty"`
	Distance     float64 `protobuf:"fixed64,2,opt,name=distance,proto3" json:"distance,omitempty"`
	AssignedAtMs int64  `protobuf:"varint,3,opt,name=assigned_at_ms,json=assignedAtMs,proto3" json:"assigned_at_ms,omitempty"`
}

// NearestClustersRequest carries a query vector and the number of clusters
// to return (spec §4.3 "nearestClusters(queryVector, n)").
type NearestClustersRequest struct {
	QueryVector []float32 `protobuf:"fixed32,1,rep,packed,name=query_vector,json=queryVector,proto3" json:"query_vector,omitempty"`
	N           int32     `protobuf:"varint,2,opt,name=n,proto3" json:"n,omitempty"`
}

// ClusterDistance is one ranked hit.
type ClusterDistance struct {
	ClusterId string  `protobuf:"bytes,1,opt,name=cluster_id,json=clusterId,proto3" json:"cluster_id,omitempty"`
	Distance  float64 `protobuf:"fixed64,2,opt,name=distance,proto3" json:"distance,omitempty"`
}

// NearestClustersResponse is the ascending-distance ranked list.
type NearestClustersResponse struct {
	Clusters []*ClusterDistance `protobuf:"bytes,1,rep,name=clusters,proto3" json:"clusters,omitempty"`
}

// SnapshotRequest is empty: Snapshot takes no arguments (spec §4.3
// "snapshot() → ClusterIndex").
type SnapshotRequest struct{}

// ClusterInfo mirrors vectortypes.ClusterInfo over the wire.
type ClusterInfo struct {
	ClusterId    string    `protobuf:"bytes,1,opt,name=cluster_id,json=clusterId,proto3" json:"cluster_id,omitempty"`
	Centroid     []float32 `protobuf:"fixed32,2,rep,packed,name=centroid,proto3" json:"centroid,omitempty"`
	VectorCount  int64     `protobuf:"varint,3,opt,name=vector_count,json=vectorCount,proto3" json:"vector_count,omitempty"`
	PartitionKey string    `protobuf:"bytes,4,opt,name=partition_key,json=partitionKey,proto3" json:"partition_key,omitempty"`
}

// SnapshotResponse mirrors vectortypes.ClusterIndex over the wire.
type SnapshotResponse struct {
	Version      int64          `protobuf:"varint,1,opt,name=version,proto3" json:"version,omitempty"`
	ClusterCount int32          `protobuf:"varint,2,opt,name=cluster_count,json=clusterCount,proto3" json:"cluster_count,omitempty"`
	TotalVectors int64          `protobuf:"varint,3,opt,name=total_vectors,json=totalVectors,proto3" json:"total_vectors,omitempty"`
	Clusters     []*ClusterInfo `protobuf:"bytes,4,rep,name=clusters,proto3" json:"clusters,omitempty"`
}

// Client API
type ClusterManagerServiceClient interface {
	Assign(ctx context.Context, in *AssignRequest, opts ...grpc.CallOption) (*AssignResponse, error)
	NearestClusters(ctx context.Context, in *NearestClustersRequest, opts ...grpc.CallOption) (*NearestClustersResponse, error)
	Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*SnapshotResponse, error)
}

type clusterManagerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewClusterManagerServiceClient(cc grpc.ClientConnInterface) ClusterManagerServiceClient {
	return &clusterManagerServiceClient{cc}
}

func (c *clusterManagerServiceClient) Assign(ctx context.Context, in *AssignRequest, opts ...grpc.CallOption) (*AssignResponse, error) {
	out := new(AssignResponse)
	if err := c.cc.Invoke(ctx, "/clustermanager.ClusterManagerService/Assign", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterManagerServiceClient) NearestClusters(ctx context.Context, in *NearestClustersRequest, opts ...grpc.CallOption) (*NearestClustersResponse, error) {
	out := new(NearestClustersResponse)
	if err := c.cc.Invoke(ctx, "/clustermanager.ClusterManagerService/NearestClusters", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *clusterManagerServiceClient) Snapshot(ctx context.Context, in *SnapshotRequest, opts ...grpc.CallOption) (*SnapshotResponse, error) {
	out := new(SnapshotResponse)
	if err := c.cc.Invoke(ctx, "/clustermanager.ClusterManagerService/Snapshot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Server API
type ClusterManagerServiceServer interface {
	Assign(context.Context, *AssignRequest) (*AssignResponse, error)
	NearestClusters(context.Context, *NearestClustersRequest) (*NearestClustersResponse, error)
	Snapshot(context.Context, *SnapshotRequest) (*SnapshotResponse, error)
}

// UnimplementedClusterManagerServiceServer can be embedded for forward
// compatibility.
type UnimplementedClusterManagerServiceServer struct{}

func (*UnimplementedClusterManagerServiceServer) Assign(context.Context, *AssignRequest) (*AssignResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Assign not implemented")
}
func (*UnimplementedClusterManagerServiceServer) NearestClusters(context.Context, *NearestClustersRequest) (*NearestClustersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method NearestClusters not implemented")
}
func (*UnimplementedClusterManagerServiceServer) Snapshot(context.Context, *SnapshotRequest) (*SnapshotResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Snapshot not implemented")
}

func RegisterClusterManagerServiceServer(s *grpc.Server, srv ClusterManagerServiceServer) {
	s.RegisterService(&_ClusterManagerService_serviceDesc, srv)
}

func _ClusterManagerService_Assign_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AssignRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterManagerServiceServer).Assign(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/clustermanager.ClusterManagerService/Assign"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterManagerServiceServer).Assign(ctx, req.(*AssignRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ClusterManagerService_NearestClusters_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NearestClustersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterManagerServiceServer).NearestClusters(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/clustermanager.ClusterManagerService/NearestClusters"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterManagerServiceServer).NearestClusters(ctx, req.(*NearestClustersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ClusterManagerService_Snapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SnapshotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClusterManagerServiceServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/clustermanager.ClusterManagerService/Snapshot"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClusterManagerServiceServer).Snapshot(ctx, req.(*SnapshotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var _ClusterManagerService_serviceDesc = grpc.ServiceDesc{
	ServiceName: "clustermanager.ClusterManagerService",
	HandlerType: (*ClusterManagerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assign", Handler: _ClusterManagerService_Assign_Handler},
		{MethodName: "NearestClusters", Handler: _ClusterManagerService_NearestClusters_Handler},
		{MethodName: "Snapshot", Handler: _ClusterManagerService_Snapshot_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clustermanager.proto",
}
